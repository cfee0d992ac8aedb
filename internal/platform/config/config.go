package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 16 * time.Minute
	defaultIdleTimeout         = 120 * time.Second
	defaultRequestTimeout      = 15 * time.Minute
	defaultMaxUploadBytes      = 10 << 20
	defaultGenerationRateLimit = 30
	defaultGenerationWindow    = time.Minute
	defaultSecurityEnvironment = "local"
	defaultReadURLTTL          = time.Hour
	defaultUploadURLTTL        = 7 * 24 * time.Hour
	defaultScratchDir          = "generated"
	defaultLLMBaseURL          = "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"
	defaultLLMModel            = "qwen-max"
	defaultLLMVisionModel      = "qwen-vl-max"
	defaultLLMTimeout          = 60 * time.Second
	defaultLLMMaxRetries       = 2
	defaultImageBaseURL        = "https://api.openai.com/v1"
	defaultImageModel          = "dall-e-3"
	defaultImageSize           = "1024x1024"
	defaultImageQuality        = "standard"
	defaultImageTimeout        = 120 * time.Second
	defaultPollInterval        = 2 * time.Second
	defaultVideoMaxPolls       = 150
	defaultVideoJobTimeout     = 5 * time.Minute
	defaultSpeechEndpoint      = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultSpeechVoice         = "longxiaochun"
	defaultSpeechModel         = "cosyvoice-v1"
	defaultSpeechMaxPolls      = 90
	defaultSpeechJobTimeout    = 3 * time.Minute
	defaultCatalogTopic        = "catalog-events"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Image     ImageConfig
	Video     VideoConfig
	Speech    SpeechConfig
	Jobs      JobsConfig
	Features  FeatureFlags
	Security  SecurityConfig
	Build     BuildConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// GenerationRateLimit caps generation requests per client within GenerationWindow.
	// Zero disables the limiter.
	GenerationRateLimit int
	GenerationWindow    time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig describes the media bucket and signing behaviour.
type StorageConfig struct {
	MediaBucket  string
	SignerJSON   string
	ReadURLTTL   time.Duration
	UploadURLTTL time.Duration
	ScratchDir   string
}

// LLMConfig points at the OpenAI-compatible chat completions endpoint used for
// taxonomy classification and object detection.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Timeout     time.Duration
	MaxRetries  int
}

// ImageConfig configures the synchronous image-synthesis backend.
type ImageConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Quality string
	Timeout time.Duration
}

// VideoConfig configures the job-polled video backend.
type VideoConfig struct {
	Endpoint     string
	Token        string
	PollInterval time.Duration
	MaxPolls     int
	JobTimeout   time.Duration
}

// SpeechConfig configures the job-polled text-to-speech backend.
type SpeechConfig struct {
	Endpoint     string
	APIKey       string
	Model        string
	DefaultVoice string
	PollInterval time.Duration
	MaxPolls     int
	JobTimeout   time.Duration
}

// JobsConfig controls catalog event publication.
type JobsConfig struct {
	ProjectID    string
	CatalogTopic string
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnableItemSpeech    bool
	EnableCatalogEvents bool
}

// SecurityConfig names the deployment environment.
type SecurityConfig struct {
	Environment string
}

// BuildConfig carries build metadata surfaced by health endpoints.
type BuildConfig struct {
	Version   string
	CommitSHA string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// EnvironmentValues returns the environment Load would see: the .env file, overridden by the
// process environment, overridden by WithEnvMap. main uses it to configure the secret
// fetcher before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return newLoaderOptions(opts).environment()
}

func (o loaderOptions) environment() (map[string]string, error) {
	values, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if o.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if key = strings.TrimSpace(key); ok && key != "" {
				values[key] = value
			}
		}
	}
	for key, value := range o.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers should match the config field names recorded by the loader
// (e.g. "LLM.APIKey" or "Video.Token").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := options.environment()
	if err != nil {
		return Config{}, err
	}
	env := envSource(values)

	cfg := Config{
		Server: ServerConfig{
			Port:                env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:         env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:        env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:         env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:      env.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			MaxUploadBytes:      int64(env.integer("API_SERVER_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
			GenerationRateLimit: env.integer("API_SERVER_GENERATION_RATE_LIMIT", defaultGenerationRateLimit),
			GenerationWindow:    env.duration("API_SERVER_GENERATION_WINDOW", defaultGenerationWindow),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			MediaBucket:  env.str("API_STORAGE_MEDIA_BUCKET", ""),
			SignerJSON:   env.str("API_STORAGE_SIGNER_JSON", ""),
			ReadURLTTL:   env.duration("API_STORAGE_READ_URL_TTL", defaultReadURLTTL),
			UploadURLTTL: env.duration("API_STORAGE_UPLOAD_URL_TTL", defaultUploadURLTTL),
			ScratchDir:   env.str("API_STORAGE_SCRATCH_DIR", defaultScratchDir),
		},
		LLM: LLMConfig{
			BaseURL:     env.str("API_LLM_BASE_URL", defaultLLMBaseURL),
			APIKey:      env.str("API_LLM_API_KEY", ""),
			Model:       env.str("API_LLM_MODEL", defaultLLMModel),
			VisionModel: env.str("API_LLM_VISION_MODEL", defaultLLMVisionModel),
			Timeout:     env.duration("API_LLM_TIMEOUT", defaultLLMTimeout),
			MaxRetries:  env.integer("API_LLM_MAX_RETRIES", defaultLLMMaxRetries),
		},
		Image: ImageConfig{
			BaseURL: env.str("API_IMAGE_BASE_URL", defaultImageBaseURL),
			APIKey:  env.str("API_IMAGE_API_KEY", ""),
			Model:   env.str("API_IMAGE_MODEL", defaultImageModel),
			Size:    env.str("API_IMAGE_SIZE", defaultImageSize),
			Quality: env.str("API_IMAGE_QUALITY", defaultImageQuality),
			Timeout: env.duration("API_IMAGE_TIMEOUT", defaultImageTimeout),
		},
		Video: VideoConfig{
			Endpoint:     env.str("API_VIDEO_ENDPOINT", ""),
			Token:        env.str("API_VIDEO_TOKEN", ""),
			PollInterval: env.duration("API_VIDEO_POLL_INTERVAL", defaultPollInterval),
			MaxPolls:     env.integer("API_VIDEO_MAX_POLLS", defaultVideoMaxPolls),
			JobTimeout:   env.duration("API_VIDEO_JOB_TIMEOUT", defaultVideoJobTimeout),
		},
		Speech: SpeechConfig{
			Endpoint:     env.str("API_SPEECH_ENDPOINT", defaultSpeechEndpoint),
			APIKey:       env.str("API_SPEECH_API_KEY", ""),
			Model:        env.str("API_SPEECH_MODEL", defaultSpeechModel),
			DefaultVoice: env.str("API_SPEECH_DEFAULT_VOICE", defaultSpeechVoice),
			PollInterval: env.duration("API_SPEECH_POLL_INTERVAL", defaultPollInterval),
			MaxPolls:     env.integer("API_SPEECH_MAX_POLLS", defaultSpeechMaxPolls),
			JobTimeout:   env.duration("API_SPEECH_JOB_TIMEOUT", defaultSpeechJobTimeout),
		},
		Jobs: JobsConfig{
			ProjectID:    env.str("API_JOBS_PROJECT_ID", ""),
			CatalogTopic: env.str("API_JOBS_CATALOG_TOPIC", defaultCatalogTopic),
		},
		Features: FeatureFlags{
			EnableItemSpeech:    env.flag("API_FEATURE_ITEM_SPEECH", false),
			EnableCatalogEvents: env.flag("API_FEATURE_CATALOG_EVENTS", true),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
		Build: BuildConfig{
			Version:   env.str("API_BUILD_VERSION", "dev"),
			CommitSHA: env.str("API_BUILD_COMMIT_SHA", ""),
		},
	}

	resolvedSecrets := make(map[string]string)
	recordSecret := func(name, value string) {
		resolvedSecrets[name] = strings.TrimSpace(value)
	}
	resolveField := func(name string, field *string) error {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return err
		}
		*field = resolved
		recordSecret(name, resolved)
		return nil
	}

	// Jobs project defaults to the Firestore project when unspecified.
	if cfg.Jobs.ProjectID == "" {
		cfg.Jobs.ProjectID = cfg.Firestore.ProjectID
	}

	// Resolve secrets when values reference Secret Manager.
	secretFields := []struct {
		name  string
		field *string
	}{
		{"LLM.APIKey", &cfg.LLM.APIKey},
		{"Image.APIKey", &cfg.Image.APIKey},
		{"Video.Token", &cfg.Video.Token},
		{"Speech.APIKey", &cfg.Speech.APIKey},
		{"Storage.SignerJSON", &cfg.Storage.SignerJSON},
	}
	for _, target := range secretFields {
		if err := resolveField(target.name, target.field); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		missing = append(missing, "Server.MaxUploadBytes")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Storage.MediaBucket == "" {
		missing = append(missing, "Storage.MediaBucket")
	}
	if cfg.Storage.ReadURLTTL <= 0 {
		missing = append(missing, "Storage.ReadURLTTL")
	}
	if cfg.Storage.UploadURLTTL <= 0 {
		missing = append(missing, "Storage.UploadURLTTL")
	}
	if strings.TrimSpace(cfg.LLM.BaseURL) == "" {
		missing = append(missing, "LLM.BaseURL")
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		missing = append(missing, "LLM.Model")
	}
	if cfg.Video.PollInterval <= 0 {
		missing = append(missing, "Video.PollInterval")
	}
	if cfg.Video.MaxPolls <= 0 {
		missing = append(missing, "Video.MaxPolls")
	}
	if cfg.Speech.PollInterval <= 0 {
		missing = append(missing, "Speech.PollInterval")
	}
	if cfg.Speech.MaxPolls <= 0 {
		missing = append(missing, "Speech.MaxPolls")
	}
	// a single job may not consume the whole request budget of its batch
	if budget := cfg.Server.RequestTimeout; budget > 0 {
		if cfg.Video.JobTimeout >= budget {
			missing = append(missing, "Video.JobTimeout")
		}
		if cfg.Speech.JobTimeout >= budget {
			missing = append(missing, "Speech.JobTimeout")
		}
		if cfg.Server.WriteTimeout > 0 && cfg.Server.WriteTimeout <= budget {
			missing = append(missing, "Server.WriteTimeout")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

// envSource reads typed settings; empty or unparsable values fall back to the default.
type envSource map[string]string

func (e envSource) str(key, fallback string) string {
	if value := e[key]; value != "" {
		return value
	}
	return fallback
}

func (e envSource) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e[key]); err == nil {
		return d
	}
	return fallback
}

func (e envSource) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e[key]); err == nil {
		return n
	}
	return fallback
}

func (e envSource) flag(key string, fallback bool) bool {
	switch strings.ToLower(e[key]) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}
