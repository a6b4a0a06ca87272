package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Logging     LoggingConfig `yaml:"logging"`
	Store       StoreConfig   `yaml:"store"`
	Options     Options       `yaml:"options"`
	UploadTasks []UploadTask  `yaml:"upload_tasks"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// StoreConfig represents object-store connection configuration
type StoreConfig struct {
	Backend    string            `yaml:"backend"`
	Region     string            `yaml:"region"`
	Profile    string            `yaml:"profile"`
	Endpoint   string            `yaml:"endpoint"`
	AccessKey  string            `yaml:"access_key"`
	SecretKey  string            `yaml:"secret_key"`
	Secure     bool              `yaml:"secure"`
	AssumeRole *AssumeRoleConfig `yaml:"assume_role"`
}

// AssumeRoleConfig represents STS assume-role configuration
type AssumeRoleConfig struct {
	RoleArn         string `yaml:"role_arn"`
	SessionName     string `yaml:"session_name"`
	ExternalID      string `yaml:"external_id"`
	DurationSeconds int    `yaml:"duration_seconds"`
}

// Options represents upload tuning options shared by all tasks
type Options struct {
	MaxRetries          int      `yaml:"max_retries"`
	ParallelUploads     int      `yaml:"parallel_uploads"`
	DryRun              bool     `yaml:"dry_run"`
	EnableProgress      bool     `yaml:"enable_progress"`
	ExcludePatterns     []string `yaml:"exclude_patterns"`
	MultipartThreshold  int64    `yaml:"multipart_threshold"`
	PartSize            int64    `yaml:"part_size"`
	TransferConcurrency int      `yaml:"transfer_concurrency"`
	MetricsAddr         string   `yaml:"metrics_addr"`
}

// UploadTask declares one unit of upload work
type UploadTask struct {
	Name        string `yaml:"name"`
	Source      string `yaml:"source"`
	Bucket      string `yaml:"bucket"`
	S3Key       string `yaml:"s3_key"`
	S3KeyPrefix string `yaml:"s3_key_prefix"`
	Enabled     bool   `yaml:"enabled"`
	Recursive   bool   `yaml:"recursive"`
}

// UnmarshalYAML decodes a task with Enabled defaulting to true.
func (t *UploadTask) UnmarshalYAML(value *yaml.Node) error {
	type rawTask UploadTask
	raw := rawTask{Enabled: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*t = UploadTask(raw)
	return nil
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Backend: "s3",
			Secure:  true,
		},
		Options: Options{
			MaxRetries:          3,
			ParallelUploads:     2,
			EnableProgress:      true,
			MultipartThreshold:  100 * 1024 * 1024, // 100MB
			PartSize:            10 * 1024 * 1024,  // 10MB
			TransferConcurrency: 4,
		},
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if flags != nil {
		loadFromFlags(cfg, flags)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("region") {
		cfg.Store.Region, _ = flags.GetString("region")
	}
	if flags.Changed("profile") {
		cfg.Store.Profile, _ = flags.GetString("profile")
	}
	if flags.Changed("endpoint") {
		cfg.Store.Endpoint, _ = flags.GetString("endpoint")
	}
	if flags.Changed("backend") {
		cfg.Store.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("max-retries") {
		cfg.Options.MaxRetries, _ = flags.GetInt("max-retries")
	}
	if flags.Changed("parallel-uploads") {
		cfg.Options.ParallelUploads, _ = flags.GetInt("parallel-uploads")
	}
	if flags.Changed("dry-run") {
		cfg.Options.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("enable-progress") {
		cfg.Options.EnableProgress, _ = flags.GetBool("enable-progress")
	}
	if flags.Changed("metrics-addr") {
		cfg.Options.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
}

var (
	roleArnPattern     = regexp.MustCompile(`^arn:aws:iam::[0-9]{12}:role/[a-zA-Z0-9+=,.@_-]+$`)
	sessionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{2,64}$`)
)

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "s3", "minio":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.Store.Backend == "minio" {
		if c.Store.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the minio backend")
		}
		if c.Store.AccessKey == "" || c.Store.SecretKey == "" {
			return fmt.Errorf("access_key and secret_key are required for the minio backend")
		}
	}

	if ar := c.Store.AssumeRole; ar != nil {
		if !roleArnPattern.MatchString(ar.RoleArn) {
			return fmt.Errorf("invalid role_arn format: %s", ar.RoleArn)
		}
		if !sessionNamePattern.MatchString(ar.SessionName) {
			return fmt.Errorf("invalid session_name: %s", ar.SessionName)
		}
		if ar.DurationSeconds == 0 {
			ar.DurationSeconds = 3600
		}
		if ar.DurationSeconds < 900 || ar.DurationSeconds > 43200 {
			return fmt.Errorf("invalid duration_seconds: %d (must be 900-43200)", ar.DurationSeconds)
		}
	}

	if c.Options.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.Options.ParallelUploads <= 0 {
		return fmt.Errorf("parallel_uploads must be positive")
	}
	if c.Options.PartSize < 5*1024*1024 { // 5MB minimum for S3
		return fmt.Errorf("part size must be at least 5MB")
	}

	if len(c.UploadTasks) == 0 {
		return fmt.Errorf("at least one upload task is required")
	}
	for i, task := range c.UploadTasks {
		if task.Name == "" {
			return fmt.Errorf("upload_tasks[%d]: name is required", i)
		}
		if task.Source == "" {
			return fmt.Errorf("upload task %q: source is required", task.Name)
		}
	}

	return nil
}
