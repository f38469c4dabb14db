package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds everything the sync pipeline and the admin server need.
type Config struct {
	DatabaseURL    string   `yaml:"database_url"`
	Port           string   `yaml:"port" validate:"required,numeric"`
	LogLevel       string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	PrettyLogs     bool     `yaml:"pretty_logs"`
	AdminToken     string   `yaml:"admin_token"`
	// AdminTokenHash is a bcrypt hash of the admin token. It wins over
	// AdminToken when both are set.
	AdminTokenHash string   `yaml:"admin_token_hash" validate:"omitempty,startswith=$2"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Parl      ParlConfig      `yaml:"parl"`
	Import    ImportConfig    `yaml:"import"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Images    ImageConfig     `yaml:"images"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

// ParlConfig describes the upstream member directory.
type ParlConfig struct {
	Host          string `yaml:"host" validate:"required,hostname"`
	Path          string `yaml:"path" validate:"required,startswith=/"`
	QueryString   string `yaml:"query_string"`
	DirectoryPath string `yaml:"directory_path" validate:"required,startswith=/"`

	// Parliament and Session are the "current term" context. They are passed
	// explicitly to every query that needs them.
	Parliament int `yaml:"parliament" validate:"gte=0"`
	Session    int `yaml:"session" validate:"gte=0"`

	OutputDir         string  `yaml:"output_dir"`
	FilePrefix        string  `yaml:"file_prefix" validate:"required"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" validate:"min=1"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
	MaxRetries        int     `yaml:"max_retries" validate:"min=0,max=10"`
}

type ImportConfig struct {
	Workers int `yaml:"workers" validate:"min=1,max=64"`
}

type ReconcileConfig struct {
	NearDuplicateThreshold float64 `yaml:"near_duplicate_threshold" validate:"gt=0,lte=1"`
}

type ImageConfig struct {
	// BaseURL resolves relative image references into fetchable URLs.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// Dir enables image adoption into a local directory when set.
	Dir string `yaml:"dir"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" validate:"required"`
}

// Defaults returns the values used for anything left unset.
func Defaults() Config {
	return Config{
		Port:     "5050",
		LogLevel: "info",
		AllowedOrigins: []string{
			"http://localhost:5173",
		},
		Parl: ParlConfig{
			Host:              "www.parl.gc.ca",
			Path:              "/MembersOfParliament/ProfileMP.aspx",
			QueryString:       "Language=E",
			DirectoryPath:     "/MembersOfParliament/MainMPsCompleteList.aspx",
			FilePrefix:        "mp",
			TimeoutSeconds:    30,
			RequestsPerSecond: 2,
		},
		Import: ImportConfig{
			Workers: 4,
		},
		Reconcile: ReconcileConfig{
			NearDuplicateThreshold: 0.9,
		},
		Kafka: KafkaConfig{
			Topic: "member-events",
		},
	}
}

// Load reads .env.local, an optional YAML file named by MPSYNC_CONFIG, then
// environment overrides, and fills anything still unset from Defaults.
//
// Environment variables:
//   - DATABASE_URL, PORT, LOG_LEVEL, PRETTY_LOGS, ALLOWED_ORIGINS
//   - ADMIN_TOKEN, ADMIN_TOKEN_HASH
//   - PARL_HOST, PARL_PATH, PARL_QUERY_STRING, PARL_DIRECTORY_PATH
//   - CURRENT_PARLIAMENT, CURRENT_SESSION
//   - PARL_OUTPUT_DIR, PARL_FILE_PREFIX, PARL_TIMEOUT_SECONDS,
//     PARL_REQUESTS_PER_SECOND, PARL_MAX_RETRIES
//   - IMPORT_WORKERS, NEAR_DUPLICATE_THRESHOLD
//   - IMAGE_BASE_URL, IMAGE_DIR
//   - KAFKA_BROKERS, KAFKA_TOPIC
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")

	var cfg Config
	if path := strings.TrimSpace(os.Getenv("MPSYNC_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return cfg, fmt.Errorf("apply defaults: %w", err)
	}

	return cfg, nil
}

// Validate checks every field rule and returns all failures at once.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: rule '%s' expected '%s', got '%v'", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// RequireDatabase is checked by commands that touch the store.
func (c Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.DatabaseURL, "DATABASE_URL")
	envString(&cfg.Port, "PORT")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	envString(&cfg.AdminToken, "ADMIN_TOKEN")
	envString(&cfg.AdminTokenHash, "ADMIN_TOKEN_HASH")
	envList(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")

	envString(&cfg.Parl.Host, "PARL_HOST")
	envString(&cfg.Parl.Path, "PARL_PATH")
	envString(&cfg.Parl.QueryString, "PARL_QUERY_STRING")
	envString(&cfg.Parl.DirectoryPath, "PARL_DIRECTORY_PATH")
	envString(&cfg.Parl.OutputDir, "PARL_OUTPUT_DIR")
	envString(&cfg.Parl.FilePrefix, "PARL_FILE_PREFIX")

	envString(&cfg.Images.BaseURL, "IMAGE_BASE_URL")
	envString(&cfg.Images.Dir, "IMAGE_DIR")

	envList(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	envString(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	var errs []error
	errs = append(errs,
		envBool(&cfg.PrettyLogs, "PRETTY_LOGS"),
		envInt(&cfg.Parl.Parliament, "CURRENT_PARLIAMENT"),
		envInt(&cfg.Parl.Session, "CURRENT_SESSION"),
		envInt(&cfg.Parl.TimeoutSeconds, "PARL_TIMEOUT_SECONDS"),
		envFloat(&cfg.Parl.RequestsPerSecond, "PARL_REQUESTS_PER_SECOND"),
		envInt(&cfg.Parl.MaxRetries, "PARL_MAX_RETRIES"),
		envInt(&cfg.Import.Workers, "IMPORT_WORKERS"),
		envFloat(&cfg.Reconcile.NearDuplicateThreshold, "NEAR_DUPLICATE_THRESHOLD"),
	)
	return errors.Join(errs...)
}

func envString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envList(dst *[]string, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func envInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
