package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	yaml "go.yaml.in/yaml/v3"

	"github.com/dukerupert/chorewheel/internal/backup"
	"github.com/dukerupert/chorewheel/internal/database"
)

// EnvPrefix is prepended to every environment variable, e.g. CHOREWHEEL_PORT.
const EnvPrefix = "CHOREWHEEL"

type Config struct {
	Port      string `yaml:"port" envconfig:"PORT"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`

	DBDriver string `yaml:"db_driver" envconfig:"DB_DRIVER"`
	DBDSN    string `yaml:"db_dsn" envconfig:"DB_DSN"`

	ReminderWindow   time.Duration `yaml:"reminder_window" envconfig:"REMINDER_WINDOW"`
	Workers          int           `yaml:"workers" envconfig:"WORKERS"`
	RotationSchedule string        `yaml:"rotation_schedule" envconfig:"ROTATION_SCHEDULE"`
	ReminderSchedule string        `yaml:"reminder_schedule" envconfig:"REMINDER_SCHEDULE"`
	TriggerEnabled   bool          `yaml:"trigger_enabled" envconfig:"TRIGGER_ENABLED"`
	TriggerToken     string        `yaml:"trigger_token" envconfig:"TRIGGER_TOKEN"`
	Timezone         string        `yaml:"timezone" envconfig:"TIMEZONE"`

	PostmarkToken string `yaml:"postmark_token" envconfig:"POSTMARK_TOKEN"`
	EmailFrom     string `yaml:"email_from" envconfig:"EMAIL_FROM"`
	PostmarkURL   string `yaml:"postmark_url" envconfig:"POSTMARK_URL"`

	TwilioAccountSID string `yaml:"twilio_account_sid" envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `yaml:"twilio_auth_token" envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `yaml:"twilio_from" envconfig:"TWILIO_FROM"`
	TwilioURL        string `yaml:"twilio_url" envconfig:"TWILIO_URL"`

	VAPIDPublicKey  string `yaml:"vapid_public_key" envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `yaml:"vapid_private_key" envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `yaml:"vapid_subject" envconfig:"VAPID_SUBJECT"`

	SendRatePerSec float64 `yaml:"send_rate_per_sec" envconfig:"SEND_RATE_PER_SEC"`

	BackupS3Endpoint  string        `yaml:"backup_s3_endpoint" envconfig:"BACKUP_S3_ENDPOINT"`
	BackupS3Bucket    string        `yaml:"backup_s3_bucket" envconfig:"BACKUP_S3_BUCKET"`
	BackupS3Region    string        `yaml:"backup_s3_region" envconfig:"BACKUP_S3_REGION"`
	BackupS3AccessKey string        `yaml:"backup_s3_access_key" envconfig:"BACKUP_S3_ACCESS_KEY"`
	BackupS3SecretKey string        `yaml:"backup_s3_secret_key" envconfig:"BACKUP_S3_SECRET_KEY"`
	BackupS3Prefix    string        `yaml:"backup_s3_prefix" envconfig:"BACKUP_S3_PREFIX"`
	BackupPassphrase  string        `yaml:"backup_passphrase" envconfig:"BACKUP_PASSPHRASE"`
	BackupSchedule    string        `yaml:"backup_schedule" envconfig:"BACKUP_SCHEDULE"`
	BackupRetention   time.Duration `yaml:"backup_retention" envconfig:"BACKUP_RETENTION"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		LogLevel:         "info",
		LogFormat:        "text",
		DBDriver:         database.DriverSQLite,
		DBDSN:            "chorewheel.db",
		ReminderWindow:   24 * time.Hour,
		Workers:          4,
		RotationSchedule: "*/15 * * * *",
		ReminderSchedule: "0 * * * *",
		TriggerEnabled:   true,
		Timezone:         "UTC",
		SendRatePerSec:   5,
		BackupS3Region:   "us-east-1",
		BackupS3Prefix:   "chorewheel/",
		BackupSchedule:   "0 3 * * *",
		BackupRetention:  30 * 24 * time.Hour,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then CHOREWHEEL_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER: %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.ReminderWindow <= 0 {
		errs = append(errs, fmt.Errorf("REMINDER_WINDOW must be positive, got %s", c.ReminderWindow))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be positive, got %d", c.Workers))
	}
	if c.SendRatePerSec < 0 {
		errs = append(errs, fmt.Errorf("SEND_RATE_PER_SEC must not be negative, got %v", c.SendRatePerSec))
	}
	if _, err := cron.ParseStandard(c.RotationSchedule); err != nil {
		errs = append(errs, fmt.Errorf("ROTATION_SCHEDULE: %w", err))
	}
	if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_SCHEDULE: %w", err))
	}
	if _, err := cron.ParseStandard(c.BackupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("BACKUP_SCHEDULE: %w", err))
	}
	if c.BackupRetention < 0 {
		errs = append(errs, fmt.Errorf("BACKUP_RETENTION must not be negative, got %s", c.BackupRetention))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone for cron schedules.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func (c *Config) EmailConfigured() bool {
	return c.PostmarkToken != "" && c.EmailFrom != ""
}

func (c *Config) SMSConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

func (c *Config) PushConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Backup returns the snapshot settings. Backups stay off until Enabled
// reports true.
func (c *Config) Backup() backup.Config {
	return backup.Config{
		Endpoint:   c.BackupS3Endpoint,
		Bucket:     c.BackupS3Bucket,
		Region:     c.BackupS3Region,
		AccessKey:  c.BackupS3AccessKey,
		SecretKey:  c.BackupS3SecretKey,
		Passphrase: c.BackupPassphrase,
		Prefix:     c.BackupS3Prefix,
		Retention:  c.BackupRetention,
	}
}
