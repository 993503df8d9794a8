package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnvVar names the optional YAML settings file.
const FileEnvVar = "TASKMANAGER_CONFIG"

// DevSecret is used when DEBUG is on and no SECRET was given.
const DevSecret = "insecure-development-secret-change-me"

type Config struct {
	Secret     string `yaml:"secret"`
	Debug      bool   `yaml:"debug"`
	DBDriver   string `yaml:"db_driver"`
	DBDSN      string `yaml:"db_dsn"`
	ServerAddr string `yaml:"server_addr"`
	TimeZone   string `yaml:"time_zone"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	SessionDB string `yaml:"session_db"`

	MediaRoot          string `yaml:"media_root"`
	MediaURL           string `yaml:"media_url"`
	StorageBackend     string `yaml:"storage_backend"`
	AWSRegion          string `yaml:"aws_region"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	AWSBucket          string `yaml:"aws_bucket"`

	EmailBackend      string `yaml:"email_backend"`
	EmailHost         string `yaml:"email_host"`
	EmailPort         int    `yaml:"email_port"`
	EmailHostUser     string `yaml:"email_host_user"`
	EmailHostPassword string `yaml:"email_host_password"`
	DefaultFromEmail  string `yaml:"default_from_email"`

	TwilioAccountSID string `yaml:"twilio_account_sid"`
	TwilioAuthToken  string `yaml:"twilio_auth_token"`
	TwilioFrom       string `yaml:"twilio_from"`

	RedisAddr string `yaml:"redis_addr"`
	// TrustProxy takes client addresses from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`

	// SkipRegistrationOTP creates accounts without the email OTP step.
	SkipRegistrationOTP bool `yaml:"skip_registration_otp"`
}

func Default() Config {
	return Config{
		Debug:            true,
		DBDriver:         "sqlite3",
		DBDSN:            "db.sqlite3",
		ServerAddr:       "127.0.0.1:8000",
		TimeZone:         "Asia/Kolkata",
		LogLevel:         "info",
		SessionDB:        "data/sessions.db",
		MediaRoot:        "media",
		MediaURL:         "/media/",
		StorageBackend:   "local",
		EmailBackend:     "smtp",
		EmailHost:        "smtp.gmail.com",
		EmailPort:        587,
		DefaultFromEmail: "Task Manager <noreply@localhost>",
	}
}

// Load reads .env files (missing ones are skipped), then the YAML file named
// by TASKMANAGER_CONFIG, then environment variables. Later sources win.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	if path := os.Getenv(FileEnvVar); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var result *multierror.Error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := parseBool(v)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("SECRET", &cfg.Secret)
	boolean("DEBUG", &cfg.Debug)
	str("DB_DRIVER", &cfg.DBDriver)
	str("DB_DSN", &cfg.DBDSN)
	str("SERVER_ADDR", &cfg.ServerAddr)
	str("TIME_ZONE", &cfg.TimeZone)
	str("LOG_FILE", &cfg.LogFile)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("SESSION_DB", &cfg.SessionDB)
	str("MEDIA_ROOT", &cfg.MediaRoot)
	str("MEDIA_URL", &cfg.MediaURL)
	str("STORAGE_BACKEND", &cfg.StorageBackend)
	str("AWS_REGION", &cfg.AWSRegion)
	str("AWS_ACCESS_KEY_ID", &cfg.AWSAccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &cfg.AWSSecretAccessKey)
	str("AWS_BUCKET", &cfg.AWSBucket)
	str("EMAIL_BACKEND", &cfg.EmailBackend)
	str("EMAIL_HOST", &cfg.EmailHost)
	integer("EMAIL_PORT", &cfg.EmailPort)
	str("EMAIL_HOST_USER", &cfg.EmailHostUser)
	str("EMAIL_HOST_PASSWORD", &cfg.EmailHostPassword)
	str("DEFAULT_FROM_EMAIL", &cfg.DefaultFromEmail)
	str("TWILIO_ACCOUNT_SID", &cfg.TwilioAccountSID)
	str("TWILIO_AUTH_TOKEN", &cfg.TwilioAuthToken)
	str("TWILIO_FROM", &cfg.TwilioFrom)
	str("REDIS_ADDR", &cfg.RedisAddr)
	boolean("TRUST_PROXY", &cfg.TrustProxy)
	boolean("SKIP_REGISTRATION_OTP", &cfg.SkipRegistrationOTP)

	return result.ErrorOrNil()
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// Validate reports every setting that cannot work.
func (c Config) Validate() error {
	var result *multierror.Error
	switch c.DBDriver {
	case "sqlite3", "mysql":
	default:
		result = multierror.Append(result, fmt.Errorf("DB_DRIVER must be sqlite3 or mysql, got %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		result = multierror.Append(result, errors.New("DB_DSN is empty"))
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		result = multierror.Append(result, fmt.Errorf("TIME_ZONE: %w", err))
	}
	switch c.StorageBackend {
	case "local":
	case "s3":
		if c.AWSBucket == "" || c.AWSRegion == "" {
			result = multierror.Append(result, errors.New("s3 storage needs AWS_BUCKET and AWS_REGION"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", c.StorageBackend))
	}
	switch c.EmailBackend {
	case "smtp", "console":
	default:
		result = multierror.Append(result, fmt.Errorf("EMAIL_BACKEND must be smtp or console, got %q", c.EmailBackend))
	}
	return result.ErrorOrNil()
}

// SigningSecret returns SECRET, or the development secret when DEBUG is on.
func (c Config) SigningSecret() (string, error) {
	if c.Secret != "" {
		return c.Secret, nil
	}
	if c.Debug {
		return DevSecret, nil
	}
	return "", errors.New("SECRET variable is not set")
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}
