// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Lifecycle     LifecycleConfig         `mapstructure:"lifecycle"`
	Locking       LockingConfig           `mapstructure:"locking"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	SLA           SLAConfig               `mapstructure:"sla"`
	Expiry        ExpiryConfig            `mapstructure:"expiry"`
	Registry      RegistryConfig          `mapstructure:"registry"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPAddress string `mapstructure:"http_address"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	TxTimeout      int    `mapstructure:"tx_timeout"` // milliseconds
	Migrate        bool   `mapstructure:"migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Addresses        []string `mapstructure:"addresses"`
	Username         string   `mapstructure:"username"`
	Password         string   `mapstructure:"password"`
	CertificateIndex string   `mapstructure:"certificate_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Domain Configuration Sections ---

// LifecycleConfig drives certificate issuance and application numbering.
type LifecycleConfig struct {
	CertificatePrefix   string `mapstructure:"certificate_prefix"`
	ApplicationPrefix   string `mapstructure:"application_prefix"`
	MaxIDAttempts       int    `mapstructure:"max_id_attempts"`
	CertificateValidity int    `mapstructure:"certificate_validity_days"`
}

// LockingConfig selects the per-entity lock backend: "redis" or "local".
type LockingConfig struct {
	Backend      string `mapstructure:"backend"`
	TTL          int    `mapstructure:"ttl"`           // milliseconds
	WaitTimeout  int    `mapstructure:"wait_timeout"`  // milliseconds
	PollInterval int    `mapstructure:"poll_interval"` // milliseconds
}

// NotificationConfig holds outbound delivery settings.
type NotificationConfig struct {
	DeliveryThreshold string `mapstructure:"delivery_threshold"`
	Email             struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled           bool   `mapstructure:"enabled"`
		PriorityThreshold string `mapstructure:"priority_threshold"`
		SenderID          string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	DefaultPageSize int `mapstructure:"default_page_size"`
}

// SLAConfig holds per-status day thresholds keyed by application status.
type SLAConfig struct {
	Thresholds map[string]int `mapstructure:"thresholds"`
}

type ExpiryConfig struct {
	WarningDays      int `mapstructure:"warning_days"`
	DedupWindowHours int `mapstructure:"dedup_window_hours"`
}

// RegistryConfig points at the activity registry holding job input schemas.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
