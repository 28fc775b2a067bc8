package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return
	}
	*result = uint(n)
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return
	}
	*result = b
}

/* PgSQL Configuration */
type pgSqlConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     uint   `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	SslMode  string `json:"ssl_mode" yaml:"ssl_mode"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Enabled:  false,
		Host:     "localhost",
		Port:     5432,
		Database: "covercraft",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvBool("POSTGRES_ENABLED", &p.Enabled)
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host" yaml:"host"`
	Port uint   `json:"port" yaml:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

/* Remote API Configuration */

type apiConfig struct {
	BaseURL       string `json:"base_url" yaml:"base_url"`
	TimeoutMs     uint   `json:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries    uint   `json:"max_retries" yaml:"max_retries"`
	BackoffBaseMs uint   `json:"backoff_base_ms" yaml:"backoff_base_ms"`
	BackoffMaxMs  uint   `json:"backoff_max_ms" yaml:"backoff_max_ms"`
}

func (a apiConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

func (a apiConfig) BackoffBase() time.Duration {
	return time.Duration(a.BackoffBaseMs) * time.Millisecond
}

func (a apiConfig) BackoffMax() time.Duration {
	return time.Duration(a.BackoffMaxMs) * time.Millisecond
}

func defaultApiConfig() apiConfig {
	return apiConfig{
		BaseURL:       "https://covercraft-api.your-account.workers.dev/api",
		TimeoutMs:     30000,
		MaxRetries:    3,
		BackoffBaseMs: 1000,
		BackoffMaxMs:  10000,
	}
}

func (a *apiConfig) loadFromEnv() {
	loadEnvString("API_BASE_URL", &a.BaseURL)
	loadEnvUint("API_TIMEOUT_MS", &a.TimeoutMs)
	loadEnvUint("API_MAX_RETRIES", &a.MaxRetries)
	loadEnvUint("API_BACKOFF_BASE_MS", &a.BackoffBaseMs)
	loadEnvUint("API_BACKOFF_MAX_MS", &a.BackoffMaxMs)
	a.BaseURL = strings.TrimRight(a.BaseURL, "/")
}

type natsConfig struct {
	// Enabled selects the NATS transport; disabled runs every context in-process.
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     uint   `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	// SubjectPrefix namespaces every context endpoint on the bus.
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

func (c *natsConfig) loadFromEnv() {
	loadEnvBool("NATS_ENABLED", &c.Enabled)
	c.Host = getEnv("NATS_HOST", c.Host)
	loadEnvUint("NATS_PORT", &c.Port)
	c.Username = getEnv("NATS_USER", c.Username)
	c.Password = getEnv("NATS_PASSWORD", c.Password)
	loadEnvString("NATS_SUBJECT_PREFIX", &c.SubjectPrefix)
}

func (c natsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Enabled:       true,
		Host:          "localhost",
		Port:          4222,
		Username:      "",
		Password:      "",
		SubjectPrefix: "covercraft",
	}
}

type securityConfig struct {
	BackendApiKey string `json:"-" yaml:"backend_api_key"`
}

func (s *securityConfig) loadFromEnv() {
	s.BackendApiKey = getEnv("BACKEND_API_KEY", s.BackendApiKey)
}

func defaultSecurityConfig() securityConfig {
	return securityConfig{
		BackendApiKey: "",
	}
}

type redisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     uint   `json:"port" yaml:"port"`
	Password string `json:"-" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

func (r redisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)

	if dbStr := getEnv("REDIS_DB", ""); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
	log.Debug().Interface("redis", r).Msg("Redis config loaded")
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
	}
}

type GCSConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	// SnapshotBucket receives raw page markup for every extraction; empty disables archiving.
	SnapshotBucket string `yaml:"snapshot_bucket"`
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", g.ProjectID)
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", g.CredentialsFile)
	g.SnapshotBucket = getEnv("GCS_SNAPSHOT_BUCKET", g.SnapshotBucket)
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{}
}

/* Storage Configuration */

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type storageConfig struct {
	LocalBackend string `json:"local_backend" yaml:"local_backend"`
	SyncBackend  string `json:"sync_backend" yaml:"sync_backend"`
	SQLitePath   string `json:"sqlite_path" yaml:"sqlite_path"`
	KeyPrefix    string `json:"key_prefix" yaml:"key_prefix"`
}

func defaultStorageConfig() storageConfig {
	return storageConfig{
		LocalBackend: BackendSQLite,
		SyncBackend:  BackendRedis,
		SQLitePath:   "covercraft.db",
		KeyPrefix:    "covercraft",
	}
}

func (s *storageConfig) loadFromEnv() {
	loadEnvString("KV_LOCAL_BACKEND", &s.LocalBackend)
	loadEnvString("KV_SYNC_BACKEND", &s.SyncBackend)
	loadEnvString("KV_SQLITE_PATH", &s.SQLitePath)
	loadEnvString("KV_KEY_PREFIX", &s.KeyPrefix)
}

/* Extension self-description */

const (
	ChannelProduction  = "production"
	ChannelDevelopment = "development"
)

type extensionConfig struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Channel string `json:"channel" yaml:"channel"`
}

func defaultExtensionConfig() extensionConfig {
	return extensionConfig{
		Name:    "CoverCraft",
		Version: "1.0.0",
		Channel: ChannelProduction,
	}
}

func (e *extensionConfig) loadFromEnv() {
	loadEnvString("EXTENSION_NAME", &e.Name)
	loadEnvString("EXTENSION_VERSION", &e.Version)
	loadEnvString("EXTENSION_CHANNEL", &e.Channel)
}

type browserConfig struct {
	// ControlURL attaches to a running browser; empty launches a new one.
	ControlURL string `json:"control_url" yaml:"control_url"`
	Headless   bool   `json:"headless" yaml:"headless"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}

func defaultBrowserConfig() browserConfig {
	return browserConfig{
		ControlURL: "",
		Headless:   true,
		Enabled:    true,
	}
}

func (b *browserConfig) loadFromEnv() {
	loadEnvString("BROWSER_CONTROL_URL", &b.ControlURL)
	loadEnvBool("BROWSER_HEADLESS", &b.Headless)
	loadEnvBool("BROWSER_ENABLED", &b.Enabled)
}

type workflowConfig struct {
	GracePeriodMs        uint `json:"grace_period_ms" yaml:"grace_period_ms"`
	ExtractionDeadlineMs uint `json:"extraction_deadline_ms" yaml:"extraction_deadline_ms"`
	GenerationCost       uint `json:"generation_cost" yaml:"generation_cost"`
}

func (w workflowConfig) GracePeriod() time.Duration {
	return time.Duration(w.GracePeriodMs) * time.Millisecond
}

func (w workflowConfig) ExtractionDeadline() time.Duration {
	return time.Duration(w.ExtractionDeadlineMs) * time.Millisecond
}

func defaultWorkflowConfig() workflowConfig {
	return workflowConfig{
		GracePeriodMs:        2000,
		ExtractionDeadlineMs: 30000,
		GenerationCost:       3,
	}
}

func (w *workflowConfig) loadFromEnv() {
	loadEnvUint("WORKFLOW_GRACE_PERIOD_MS", &w.GracePeriodMs)
	loadEnvUint("WORKFLOW_EXTRACTION_DEADLINE_MS", &w.ExtractionDeadlineMs)
	loadEnvUint("WORKFLOW_GENERATION_COST", &w.GenerationCost)
}

type logConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

func defaultLogConfig() logConfig {
	return logConfig{
		Level:  "info",
		Pretty: false,
	}
}

func (l *logConfig) loadFromEnv() {
	loadEnvString("LOG_LEVEL", &l.Level)
	loadEnvBool("LOG_PRETTY", &l.Pretty)
}

type Config struct {
	Listen    listenConfig    `yaml:"listen"`
	API       apiConfig       `yaml:"api"`
	PgSql     pgSqlConfig     `yaml:"postgres"`
	Security  securityConfig  `yaml:"security"`
	Nats      natsConfig      `yaml:"nats"`
	Redis     redisConfig     `yaml:"redis"`
	GCS       GCSConfig       `yaml:"gcs"`
	Storage   storageConfig   `yaml:"storage"`
	Extension extensionConfig `yaml:"extension"`
	Browser   browserConfig   `yaml:"browser"`
	Workflow  workflowConfig  `yaml:"workflow"`
	Log       logConfig       `yaml:"log"`
}

func (c *Config) LoadFromEnv() {
	c.Listen.loadFromEnv()
	c.API.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Security.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.Storage.loadFromEnv()
	c.Extension.loadFromEnv()
	c.Browser.loadFromEnv()
	c.Workflow.loadFromEnv()
	c.Log.loadFromEnv()
}

// LoadFromFile overlays the YAML document at path onto c. Keys missing from
// the file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	return nil
}

// Validate rejects settings the coordinator cannot run with.
func (c Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return fmt.Errorf("%w: api base_url is empty", common.ErrInvalidConfig)
	case c.Extension.Channel != ChannelProduction && c.Extension.Channel != ChannelDevelopment:
		return fmt.Errorf("%w: unknown extension channel %q", common.ErrInvalidConfig, c.Extension.Channel)
	case c.Workflow.ExtractionDeadlineMs == 0:
		return fmt.Errorf("%w: workflow extraction_deadline_ms must be positive", common.ErrInvalidConfig)
	case c.Workflow.GracePeriodMs > c.Workflow.ExtractionDeadlineMs:
		return fmt.Errorf("%w: workflow grace period exceeds the extraction deadline", common.ErrInvalidConfig)
	}
	return nil
}

func DefaultConfig() Config {
	return Config{
		Listen:    defaultListenConfig(),
		API:       defaultApiConfig(),
		PgSql:     defaultPgSql(),
		Security:  defaultSecurityConfig(),
		Nats:      defaultNatsConfig(),
		Redis:     defaultRedisConfig(),
		GCS:       defaultGcsConfig(),
		Storage:   defaultStorageConfig(),
		Extension: defaultExtensionConfig(),
		Browser:   defaultBrowserConfig(),
		Workflow:  defaultWorkflowConfig(),
		Log:       defaultLogConfig(),
	}
}
