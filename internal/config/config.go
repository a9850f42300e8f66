package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	JWT      JWTConfig
	Log      LogConfig
	CORS     CORSConfig
	Provider ProviderConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	Suggest  SuggestConfig
	Rules    RulesConfig
	Worker   WorkerConfig
	Stats    StatsConfig
	Events   EventsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// JWTConfig holds bearer-token validation settings. Token issuance belongs to
// the surrounding identity service.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ProviderBackendConfig holds settings for a single language-model backend.
type ProviderBackendConfig struct {
	Kind        string  `mapstructure:"kind"` // anthropic | gemini | openai
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
	RPS         float64 `mapstructure:"rps"`
	Burst       int     `mapstructure:"burst"`
}

// ProviderConfig holds the closed set of configured backends. Classifier and
// extractor can be pinned to different backends.
type ProviderConfig struct {
	Classifier string                `mapstructure:"classifier"` // provider id used for classification
	Extractor  string                `mapstructure:"extractor"`  // provider id used for extraction
	Primary    ProviderBackendConfig `mapstructure:"primary"`
	Secondary  ProviderBackendConfig `mapstructure:"secondary"`
	Tertiary   ProviderBackendConfig `mapstructure:"tertiary"`
}

// Backends returns the configured backends keyed by provider id.
func (p *ProviderConfig) Backends() map[string]ProviderBackendConfig {
	out := map[string]ProviderBackendConfig{}
	if p.Primary.Kind != "" {
		out["primary"] = p.Primary
	}
	if p.Secondary.Kind != "" {
		out["secondary"] = p.Secondary
	}
	if p.Tertiary.Kind != "" {
		out["tertiary"] = p.Tertiary
	}
	return out
}

// PipelineConfig holds orchestrator retry policy.
type PipelineConfig struct {
	ClassifyAttempts int           `mapstructure:"classify_attempts"`
	ExtractAttempts  int           `mapstructure:"extract_attempts"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	RetryMode        string        `mapstructure:"retry_mode"` // reclassify | reuse_type
}

// CacheConfig holds pattern cache tunables. The learning rate and thresholds
// are deliberately configuration, not constants; they need empirical tuning
// per corpus.
type CacheConfig struct {
	TemplateThreshold  float64 `mapstructure:"template_threshold"`
	LearningRate       float64 `mapstructure:"learning_rate"`
	InitialTemplate    float64 `mapstructure:"initial_template_confidence"`
	ConflictRetries    int     `mapstructure:"conflict_retries"`
	TopPatternsDefault int     `mapstructure:"top_patterns_default"`
}

// SuggestConfig holds suggestion gate settings.
type SuggestConfig struct {
	AutoApplyThreshold float64 `mapstructure:"auto_apply_threshold"`
}

// RulesConfig holds rule engine tunables.
type RulesConfig struct {
	ImpliedIVARate float64 `mapstructure:"implied_iva_rate"`
	TaxTolerance   float64 `mapstructure:"tax_tolerance"`
}

// WorkerConfig holds pipeline worker pool settings.
type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Concurrency  int           `mapstructure:"concurrency"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// StatsConfig holds per-call unit costs used for savings estimation.
type StatsConfig struct {
	CostPerCallUSD    float64 `mapstructure:"cost_per_call_usd"`
	SecondsPerCall    float64 `mapstructure:"seconds_per_call"`
	DefaultPeriodDays int     `mapstructure:"default_period_days"`
}

// EventsConfig holds terminal-transition event emission settings.
type EventsConfig struct {
	Provider      string `mapstructure:"provider"` // nats | noop
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Load reads configuration from environment variables with the FACTURIO_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FACTURIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "facturio")
	v.SetDefault("db.password", "facturio_secret")
	v.SetDefault("db.name", "facturio_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// JWT defaults
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.issuer", "facturio")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Provider defaults
	v.SetDefault("provider.classifier", "primary")
	v.SetDefault("provider.extractor", "primary")
	for _, slot := range []string{"primary", "secondary", "tertiary"} {
		v.SetDefault("provider."+slot+".kind", "")
		v.SetDefault("provider."+slot+".api_key", "")
		v.SetDefault("provider."+slot+".model", "")
		v.SetDefault("provider."+slot+".timeout_secs", 120)
		v.SetDefault("provider."+slot+".rps", 2.0)
		v.SetDefault("provider."+slot+".burst", 4)
	}
	v.SetDefault("provider.primary.kind", "anthropic")
	v.SetDefault("provider.primary.model", "claude-sonnet-4-20250514")

	// Pipeline defaults
	v.SetDefault("pipeline.classify_attempts", 3)
	v.SetDefault("pipeline.extract_attempts", 3)
	v.SetDefault("pipeline.backoff_base", "500ms")
	v.SetDefault("pipeline.retry_mode", "reuse_type")

	// Cache defaults
	v.SetDefault("cache.template_threshold", 0.75)
	v.SetDefault("cache.learning_rate", 0.2)
	v.SetDefault("cache.initial_template_confidence", 0.6)
	v.SetDefault("cache.conflict_retries", 3)
	v.SetDefault("cache.top_patterns_default", 10)

	// Suggestion gate defaults
	v.SetDefault("suggest.auto_apply_threshold", 0.85)

	// Rule engine defaults
	v.SetDefault("rules.implied_iva_rate", 0.21)
	v.SetDefault("rules.tax_tolerance", 0.01)

	// Worker defaults
	v.SetDefault("worker.poll_interval", "10s")
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.stale_after", "10m")

	// Stats defaults
	v.SetDefault("stats.cost_per_call_usd", 0.02)
	v.SetDefault("stats.seconds_per_call", 8.0)
	v.SetDefault("stats.default_period_days", 30)

	// Events defaults
	v.SetDefault("events.provider", "noop")
	v.SetDefault("events.nats_url", "nats://localhost:4222")
	v.SetDefault("events.subject_prefix", "facturio.documents")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                       "FACTURIO_SERVER_PORT",
		"server.read_timeout":               "FACTURIO_SERVER_READ_TIMEOUT",
		"server.write_timeout":              "FACTURIO_SERVER_WRITE_TIMEOUT",
		"server.environment":                "FACTURIO_SERVER_ENVIRONMENT",
		"db.host":                           "FACTURIO_DB_HOST",
		"db.port":                           "FACTURIO_DB_PORT",
		"db.user":                           "FACTURIO_DB_USER",
		"db.password":                       "FACTURIO_DB_PASSWORD",
		"db.name":                           "FACTURIO_DB_NAME",
		"db.sslmode":                        "FACTURIO_DB_SSLMODE",
		"db.max_open":                       "FACTURIO_DB_MAX_OPEN",
		"db.max_idle":                       "FACTURIO_DB_MAX_IDLE",
		"jwt.secret":                        "FACTURIO_JWT_SECRET",
		"jwt.issuer":                        "FACTURIO_JWT_ISSUER",
		"log.level":                         "FACTURIO_LOG_LEVEL",
		"log.format":                        "FACTURIO_LOG_FORMAT",
		"cors.allowed_origins":              "FACTURIO_CORS_ALLOWED_ORIGINS",
		"provider.classifier":               "FACTURIO_PROVIDER_CLASSIFIER",
		"provider.extractor":                "FACTURIO_PROVIDER_EXTRACTOR",
		"pipeline.classify_attempts":        "FACTURIO_PIPELINE_CLASSIFY_ATTEMPTS",
		"pipeline.extract_attempts":         "FACTURIO_PIPELINE_EXTRACT_ATTEMPTS",
		"pipeline.backoff_base":             "FACTURIO_PIPELINE_BACKOFF_BASE",
		"pipeline.retry_mode":               "FACTURIO_PIPELINE_RETRY_MODE",
		"cache.template_threshold":          "FACTURIO_CACHE_TEMPLATE_THRESHOLD",
		"cache.learning_rate":               "FACTURIO_CACHE_LEARNING_RATE",
		"cache.initial_template_confidence": "FACTURIO_CACHE_INITIAL_TEMPLATE_CONFIDENCE",
		"cache.conflict_retries":            "FACTURIO_CACHE_CONFLICT_RETRIES",
		"cache.top_patterns_default":        "FACTURIO_CACHE_TOP_PATTERNS_DEFAULT",
		"suggest.auto_apply_threshold":      "FACTURIO_SUGGEST_AUTO_APPLY_THRESHOLD",
		"rules.implied_iva_rate":            "FACTURIO_RULES_IMPLIED_IVA_RATE",
		"rules.tax_tolerance":               "FACTURIO_RULES_TAX_TOLERANCE",
		"worker.poll_interval":              "FACTURIO_WORKER_POLL_INTERVAL",
		"worker.concurrency":                "FACTURIO_WORKER_CONCURRENCY",
		"worker.stale_after":                "FACTURIO_WORKER_STALE_AFTER",
		"stats.cost_per_call_usd":           "FACTURIO_STATS_COST_PER_CALL_USD",
		"stats.seconds_per_call":            "FACTURIO_STATS_SECONDS_PER_CALL",
		"stats.default_period_days":         "FACTURIO_STATS_DEFAULT_PERIOD_DAYS",
		"events.provider":                   "FACTURIO_EVENTS_PROVIDER",
		"events.nats_url":                   "FACTURIO_EVENTS_NATS_URL",
		"events.subject_prefix":             "FACTURIO_EVENTS_SUBJECT_PREFIX",
	}
	for _, slot := range []string{"primary", "secondary", "tertiary"} {
		upper := strings.ToUpper(slot)
		envBindings["provider."+slot+".kind"] = "FACTURIO_PROVIDER_" + upper + "_KIND"
		envBindings["provider."+slot+".api_key"] = "FACTURIO_PROVIDER_" + upper + "_API_KEY"
		envBindings["provider."+slot+".model"] = "FACTURIO_PROVIDER_" + upper + "_MODEL"
		envBindings["provider."+slot+".timeout_secs"] = "FACTURIO_PROVIDER_" + upper + "_TIMEOUT_SECS"
		envBindings["provider."+slot+".rps"] = "FACTURIO_PROVIDER_" + upper + "_RPS"
		envBindings["provider."+slot+".burst"] = "FACTURIO_PROVIDER_" + upper + "_BURST"
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if FACTURIO_SERVER_PORT
	// is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("FACTURIO_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.JWT = JWTConfig{
		Secret: v.GetString("jwt.secret"),
		Issuer: v.GetString("jwt.issuer"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	backend := func(slot string) ProviderBackendConfig {
		return ProviderBackendConfig{
			Kind:        v.GetString("provider." + slot + ".kind"),
			APIKey:      v.GetString("provider." + slot + ".api_key"),
			Model:       v.GetString("provider." + slot + ".model"),
			TimeoutSecs: v.GetInt("provider." + slot + ".timeout_secs"),
			RPS:         v.GetFloat64("provider." + slot + ".rps"),
			Burst:       v.GetInt("provider." + slot + ".burst"),
		}
	}
	cfg.Provider = ProviderConfig{
		Classifier: v.GetString("provider.classifier"),
		Extractor:  v.GetString("provider.extractor"),
		Primary:    backend("primary"),
		Secondary:  backend("secondary"),
		Tertiary:   backend("tertiary"),
	}

	cfg.Pipeline = PipelineConfig{
		ClassifyAttempts: v.GetInt("pipeline.classify_attempts"),
		ExtractAttempts:  v.GetInt("pipeline.extract_attempts"),
		BackoffBase:      v.GetDuration("pipeline.backoff_base"),
		RetryMode:        v.GetString("pipeline.retry_mode"),
	}
	cfg.Cache = CacheConfig{
		TemplateThreshold:  v.GetFloat64("cache.template_threshold"),
		LearningRate:       v.GetFloat64("cache.learning_rate"),
		InitialTemplate:    v.GetFloat64("cache.initial_template_confidence"),
		ConflictRetries:    v.GetInt("cache.conflict_retries"),
		TopPatternsDefault: v.GetInt("cache.top_patterns_default"),
	}
	cfg.Suggest = SuggestConfig{
		AutoApplyThreshold: v.GetFloat64("suggest.auto_apply_threshold"),
	}
	cfg.Rules = RulesConfig{
		ImpliedIVARate: v.GetFloat64("rules.implied_iva_rate"),
		TaxTolerance:   v.GetFloat64("rules.tax_tolerance"),
	}
	cfg.Worker = WorkerConfig{
		PollInterval: v.GetDuration("worker.poll_interval"),
		Concurrency:  v.GetInt("worker.concurrency"),
		StaleAfter:   v.GetDuration("worker.stale_after"),
	}
	cfg.Stats = StatsConfig{
		CostPerCallUSD:    v.GetFloat64("stats.cost_per_call_usd"),
		SecondsPerCall:    v.GetFloat64("stats.seconds_per_call"),
		DefaultPeriodDays: v.GetInt("stats.default_period_days"),
	}
	cfg.Events = EventsConfig{
		Provider:      v.GetString("events.provider"),
		NATSURL:       v.GetString("events.nats_url"),
		SubjectPrefix: v.GetString("events.subject_prefix"),
	}

	return cfg, nil
}
