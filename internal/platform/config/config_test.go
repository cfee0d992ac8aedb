package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIRESTORE_PROJECT_ID": "wim-dev",
		"API_STORAGE_MEDIA_BUCKET": "wim-media-dev",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.MaxUploadBytes != 10<<20 {
		t.Errorf("unexpected max upload bytes: %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Jobs.ProjectID != "wim-dev" {
		t.Errorf("expected jobs project to default to firestore project, got %s", cfg.Jobs.ProjectID)
	}
	if cfg.Storage.ReadURLTTL != time.Hour {
		t.Errorf("expected 1h read url ttl, got %s", cfg.Storage.ReadURLTTL)
	}
	if cfg.Storage.UploadURLTTL != 7*24*time.Hour {
		t.Errorf("expected 7d upload url ttl, got %s", cfg.Storage.UploadURLTTL)
	}
	if cfg.LLM.Model != "qwen-max" {
		t.Errorf("unexpected llm model %s", cfg.LLM.Model)
	}
	if cfg.Image.Model != "dall-e-3" || cfg.Image.Size != "1024x1024" || cfg.Image.Quality != "standard" {
		t.Errorf("unexpected image defaults %+v", cfg.Image)
	}
	if cfg.Video.PollInterval != 2*time.Second {
		t.Errorf("expected 2s video poll interval, got %s", cfg.Video.PollInterval)
	}
	if cfg.Video.MaxPolls <= 0 || cfg.Video.JobTimeout <= 0 {
		t.Errorf("expected bounded video polling, got %+v", cfg.Video)
	}
	if cfg.Speech.DefaultVoice == "" {
		t.Errorf("expected default speech voice")
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Features.EnableItemSpeech {
		t.Errorf("expected item speech disabled by default")
	}
	if !cfg.Features.EnableCatalogEvents {
		t.Errorf("expected catalog events enabled by default")
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":            "9090",
		"API_SERVER_READ_TIMEOUT":    "20s",
		"API_FIRESTORE_PROJECT_ID":   "wim-prod",
		"API_STORAGE_MEDIA_BUCKET":   "media-prod",
		"API_STORAGE_READ_URL_TTL":   "30m",
		"API_LLM_API_KEY":            "secret://llm/key",
		"API_IMAGE_API_KEY":          "secret://image/key",
		"API_VIDEO_ENDPOINT":         "https://video.example.com",
		"API_VIDEO_TOKEN":            "secret://video/token",
		"API_VIDEO_MAX_POLLS":        "10",
		"API_SPEECH_API_KEY":         "plain-speech-key",
		"API_JOBS_PROJECT_ID":        "wim-jobs",
		"API_FEATURE_ITEM_SPEECH":    "yes",
		"API_SECURITY_ENVIRONMENT":   "PROD",
		"API_BUILD_VERSION":          "1.2.3",
		"API_FEATURE_CATALOG_EVENTS": "off",
	}
	secrets := map[string]string{
		"secret://llm/key":     "llm-123",
		"secret://image/key":   "img-456",
		"secret://video/token": "vid-789",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Storage.ReadURLTTL != 30*time.Minute {
		t.Errorf("unexpected read ttl %s", cfg.Storage.ReadURLTTL)
	}
	if cfg.LLM.APIKey != "llm-123" || cfg.Image.APIKey != "img-456" || cfg.Video.Token != "vid-789" {
		t.Errorf("secrets not resolved: llm=%q image=%q video=%q", cfg.LLM.APIKey, cfg.Image.APIKey, cfg.Video.Token)
	}
	if cfg.Speech.APIKey != "plain-speech-key" {
		t.Errorf("expected plain speech key, got %q", cfg.Speech.APIKey)
	}
	if cfg.Video.MaxPolls != 10 {
		t.Errorf("unexpected max polls %d", cfg.Video.MaxPolls)
	}
	if cfg.Jobs.ProjectID != "wim-jobs" {
		t.Errorf("unexpected jobs project %s", cfg.Jobs.ProjectID)
	}
	if !cfg.Features.EnableItemSpeech || cfg.Features.EnableCatalogEvents {
		t.Errorf("unexpected feature flags %+v", cfg.Features)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if cfg.Build.Version != "1.2.3" {
		t.Errorf("unexpected build version %s", cfg.Build.Version)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nexport API_FIRESTORE_PROJECT_ID=wim-dot\nAPI_STORAGE_MEDIA_BUCKET=\"media-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "wim-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Storage.MediaBucket != "media-dot" {
		t.Errorf("expected quotes trimmed from bucket, got %s", cfg.Storage.MediaBucket)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firestore.ProjectID": false, "Storage.MediaBucket": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields %v", field, fields)
		}
	}
}

func TestLoadRejectsNonPositivePolling(t *testing.T) {
	env := baseEnv()
	env["API_VIDEO_MAX_POLLS"] = "0"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadJobTimeoutsFitRequestBudget(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Video.JobTimeout >= cfg.Server.RequestTimeout || cfg.Speech.JobTimeout >= cfg.Server.RequestTimeout {
		t.Fatalf("job timeouts %s/%s must be below request timeout %s", cfg.Video.JobTimeout, cfg.Speech.JobTimeout, cfg.Server.RequestTimeout)
	}
	if cfg.Server.WriteTimeout <= cfg.Server.RequestTimeout {
		t.Fatalf("write timeout %s must exceed request timeout %s", cfg.Server.WriteTimeout, cfg.Server.RequestTimeout)
	}

	cases := map[string]map[string]string{
		"Video.JobTimeout":    {"API_VIDEO_JOB_TIMEOUT": "15m"},
		"Speech.JobTimeout":   {"API_SERVER_REQUEST_TIMEOUT": "2m"},
		"Server.WriteTimeout": {"API_SERVER_WRITE_TIMEOUT": "15m"},
	}
	for field, overrides := range cases {
		t.Run(field, func(t *testing.T) {
			env := baseEnv()
			for k, v := range overrides {
				env[k] = v
			}
			_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, f := range validation.Fields() {
				found = found || f == field
			}
			if !found {
				t.Fatalf("expected %s in %v", field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_LLM_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS":  "secret://llm/key=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://llm/key=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("LLM.APIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("LLM.APIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Video.Token" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Video.Token"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := baseEnv()
	env["API_SPEECH_API_KEY"] = "sm://speech/key"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://speech/key" {
			return "legacy-secret", nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Speech.APIKey != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Speech.APIKey)
	}
}
