package main

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/secrets"
)

const defaultSecretFallbackFile = ".secrets.local"

// requiredSecretNames lists the config fields that must resolve to a value. Optional
// backends only need credentials once they are configured.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"LLM.APIKey", "Storage.SignerJSON"}
	for _, opt := range []struct{ trigger, secret string }{
		{"API_IMAGE_API_KEY", "Image.APIKey"},
		{"API_VIDEO_ENDPOINT", "Video.Token"},
		{"API_SPEECH_API_KEY", "Speech.APIKey"},
	} {
		if strings.TrimSpace(env[opt.trigger]) != "" && !slices.Contains(required, opt.secret) {
			required = append(required, opt.secret)
		}
	}
	return required
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	get := func(keys ...string) string {
		for _, key := range keys {
			if v := strings.TrimSpace(env[key]); v != "" {
				return v
			}
		}
		return ""
	}

	label := strings.ToLower(get("API_SECURITY_ENVIRONMENT"))
	if label == "" {
		label = "local"
	}
	fallback := get("API_SECRET_FALLBACK_FILE")
	if fallback == "" {
		fallback = defaultSecretFallbackFile
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(label),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallback),
		secrets.WithProjectMap(secretProjectMapFromEnv(env)),
		secrets.WithVersionPins(secretVersionPinsFromEnv(env)),
	}
	if project := get("API_SECRET_DEFAULT_PROJECT_ID", "API_FIRESTORE_PROJECT_ID"); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if creds := get("API_SECRET_CREDENTIALS_FILE"); creds != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(creds)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// secretProjectMapFromEnv parses API_SECRET_PROJECT_IDS ("prod=wim-prod,staging=wim-stg").
func secretProjectMapFromEnv(env map[string]string) map[string]string {
	projects := make(map[string]string)
	for label, project := range parseKeyValueList(env["API_SECRET_PROJECT_IDS"]) {
		projects[strings.ToLower(label)] = project
	}
	return projects
}

// secretVersionPinsFromEnv parses API_SECRET_VERSION_PINS. Keys are secret references,
// bare names or sm:// refs, optionally scoped to an environment ("prod:secret://llm/key").
func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	pins := make(map[string]string)
	for key, version := range parseKeyValueList(env["API_SECRET_VERSION_PINS"]) {
		scope := ""
		if before, after, found := strings.Cut(key, ":"); found && !strings.HasPrefix(after, "//") {
			scope = strings.ToLower(strings.TrimSpace(before)) + ":"
			key = strings.TrimSpace(after)
		}
		pins[scope+canonicalSecretRef(key)] = version
	}
	return pins
}

func canonicalSecretRef(ref string) string {
	if rest, ok := strings.CutPrefix(ref, "sm://"); ok {
		return "secret://" + rest
	}
	if strings.HasPrefix(ref, "secret://") {
		return ref
	}
	return "secret://" + ref
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, _ := strings.Cut(entry, "=")
		if key, value = strings.TrimSpace(key), strings.TrimSpace(value); key != "" && value != "" {
			result[key] = value
		}
	}
	return result
}
