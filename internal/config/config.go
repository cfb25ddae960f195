package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"paperflow/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Pipeline PipelineConfig
	Input    InputConfig
	Output   OutputConfig
	S3       S3Config
	State    StateConfig
	DB       DBConfig
	Retry    RetryConfig
	Quality  QualityConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

// PipelineConfig holds chunking and parallelism settings.
type PipelineConfig struct {
	Mode         domain.RunMode `mapstructure:"mode"`
	ChunkSize    int            `mapstructure:"chunk_size"`
	Workers      int            `mapstructure:"workers"`
	MaxBatchSize int            `mapstructure:"max_batch_size"`
	StartPart    int            `mapstructure:"start_part"`
	StartOffset  int64          `mapstructure:"start_offset"`
	MaxChunks    int            `mapstructure:"max_chunks"`
}

// InputConfig locates the raw record stream.
type InputConfig struct {
	Locality domain.Locality `mapstructure:"locality"`
	Path     string          `mapstructure:"path"`
	Bucket   string          `mapstructure:"bucket"`
	FromDate string          `mapstructure:"from_date"`
	ToDate   string          `mapstructure:"to_date"`
}

// OutputConfig locates the partitioned output and the lookup table.
type OutputConfig struct {
	Locality    domain.Locality     `mapstructure:"locality"`
	Path        string              `mapstructure:"path"`
	Bucket      string              `mapstructure:"bucket"`
	Format      domain.OutputFormat `mapstructure:"format"`
	LookupTable bool                `mapstructure:"lookup_table"`
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// StateConfig selects the prior-state store.
type StateConfig struct {
	Backend    domain.StateBackend `mapstructure:"backend"`
	SQLitePath string              `mapstructure:"sqlite_path"`
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

// RetryConfig bounds retries of sink, source and prior-state I/O.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

// QualityConfig holds missing-rate thresholds in percent.
type QualityConfig struct {
	MissingTitlesPct     float64 `mapstructure:"missing_titles_pct"`
	MissingAbstractsPct  float64 `mapstructure:"missing_abstracts_pct"`
	MissingCategoriesPct float64 `mapstructure:"missing_categories_pct"`
	MissingAuthorsPct    float64 `mapstructure:"missing_authors_pct"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional YAML file and from environment
// variables with the PAPERFLOW_ prefix. Environment values win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAPERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Pipeline defaults
	v.SetDefault("pipeline.mode", string(domain.RunModeHistory))
	v.SetDefault("pipeline.chunk_size", 10000)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.max_batch_size", 5000)
	v.SetDefault("pipeline.start_part", 0)
	v.SetDefault("pipeline.start_offset", 0)
	v.SetDefault("pipeline.max_chunks", 0)

	// Input defaults
	v.SetDefault("input.locality", string(domain.LocalityLocal))
	v.SetDefault("input.path", "")
	v.SetDefault("input.bucket", "")
	v.SetDefault("input.from_date", "")
	v.SetDefault("input.to_date", "")

	// Output defaults
	v.SetDefault("output.locality", string(domain.LocalityLocal))
	v.SetDefault("output.path", "output")
	v.SetDefault("output.bucket", "")
	v.SetDefault("output.format", string(domain.OutputFormatParquet))
	v.SetDefault("output.lookup_table", false)

	// S3 defaults
	v.SetDefault("s3.region", "ap-northeast-1")
	v.SetDefault("s3.endpoint", "")

	// State defaults
	v.SetDefault("state.backend", string(domain.StateBackendSQLite))
	v.SetDefault("state.sqlite_path", "paperflow_state.db")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "paperflow")
	v.SetDefault("db.password", "paperflow_secret")
	v.SetDefault("db.name", "paperflow")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_backoff", "500ms")
	v.SetDefault("retry.max_backoff", "30s")

	// Quality thresholds
	v.SetDefault("quality.missing_titles_pct", 5.0)
	v.SetDefault("quality.missing_abstracts_pct", 10.0)
	v.SetDefault("quality.missing_categories_pct", 5.0)
	v.SetDefault("quality.missing_authors_pct", 15.0)

	// Metrics defaults
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "paperflow")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading config file %s: %v", domain.ErrInvalidConfig, path, err)
		}
	}

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"pipeline.mode":                  "PAPERFLOW_PIPELINE_MODE",
		"pipeline.chunk_size":            "PAPERFLOW_PIPELINE_CHUNK_SIZE",
		"pipeline.workers":               "PAPERFLOW_PIPELINE_WORKERS",
		"pipeline.max_batch_size":        "PAPERFLOW_PIPELINE_MAX_BATCH_SIZE",
		"pipeline.start_part":            "PAPERFLOW_PIPELINE_START_PART",
		"pipeline.start_offset":          "PAPERFLOW_PIPELINE_START_OFFSET",
		"pipeline.max_chunks":            "PAPERFLOW_PIPELINE_MAX_CHUNKS",
		"input.locality":                 "PAPERFLOW_INPUT_LOCALITY",
		"input.path":                     "PAPERFLOW_INPUT_PATH",
		"input.bucket":                   "PAPERFLOW_INPUT_BUCKET",
		"input.from_date":                "PAPERFLOW_INPUT_FROM_DATE",
		"input.to_date":                  "PAPERFLOW_INPUT_TO_DATE",
		"output.locality":                "PAPERFLOW_OUTPUT_LOCALITY",
		"output.path":                    "PAPERFLOW_OUTPUT_PATH",
		"output.bucket":                  "PAPERFLOW_OUTPUT_BUCKET",
		"output.format":                  "PAPERFLOW_OUTPUT_FORMAT",
		"output.lookup_table":            "PAPERFLOW_OUTPUT_LOOKUP_TABLE",
		"s3.region":                      "PAPERFLOW_S3_REGION",
		"s3.endpoint":                    "PAPERFLOW_S3_ENDPOINT",
		"s3.access_key":                  "PAPERFLOW_S3_ACCESS_KEY",
		"s3.secret_key":                  "PAPERFLOW_S3_SECRET_KEY",
		"state.backend":                  "PAPERFLOW_STATE_BACKEND",
		"state.sqlite_path":              "PAPERFLOW_STATE_SQLITE_PATH",
		"db.host":                        "PAPERFLOW_DB_HOST",
		"db.port":                        "PAPERFLOW_DB_PORT",
		"db.user":                        "PAPERFLOW_DB_USER",
		"db.password":                    "PAPERFLOW_DB_PASSWORD",
		"db.name":                        "PAPERFLOW_DB_NAME",
		"db.sslmode":                     "PAPERFLOW_DB_SSLMODE",
		"db.max_open":                    "PAPERFLOW_DB_MAX_OPEN",
		"db.max_idle":                    "PAPERFLOW_DB_MAX_IDLE",
		"retry.max_attempts":             "PAPERFLOW_RETRY_MAX_ATTEMPTS",
		"retry.base_backoff":             "PAPERFLOW_RETRY_BASE_BACKOFF",
		"retry.max_backoff":              "PAPERFLOW_RETRY_MAX_BACKOFF",
		"quality.missing_titles_pct":     "PAPERFLOW_QUALITY_MISSING_TITLES_PCT",
		"quality.missing_abstracts_pct":  "PAPERFLOW_QUALITY_MISSING_ABSTRACTS_PCT",
		"quality.missing_categories_pct": "PAPERFLOW_QUALITY_MISSING_CATEGORIES_PCT",
		"quality.missing_authors_pct":    "PAPERFLOW_QUALITY_MISSING_AUTHORS_PCT",
		"metrics.listen_addr":            "PAPERFLOW_METRICS_LISTEN_ADDR",
		"metrics.pushgateway_url":        "PAPERFLOW_METRICS_PUSHGATEWAY_URL",
		"metrics.job_name":               "PAPERFLOW_METRICS_JOB_NAME",
		"log.level":                      "PAPERFLOW_LOG_LEVEL",
		"log.format":                     "PAPERFLOW_LOG_FORMAT",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}
	cfg.Pipeline = PipelineConfig{
		Mode:         domain.RunMode(v.GetString("pipeline.mode")),
		ChunkSize:    v.GetInt("pipeline.chunk_size"),
		Workers:      v.GetInt("pipeline.workers"),
		MaxBatchSize: v.GetInt("pipeline.max_batch_size"),
		StartPart:    v.GetInt("pipeline.start_part"),
		StartOffset:  v.GetInt64("pipeline.start_offset"),
		MaxChunks:    v.GetInt("pipeline.max_chunks"),
	}
	cfg.Input = InputConfig{
		Locality: domain.Locality(v.GetString("input.locality")),
		Path:     v.GetString("input.path"),
		Bucket:   v.GetString("input.bucket"),
		FromDate: v.GetString("input.from_date"),
		ToDate:   v.GetString("input.to_date"),
	}
	cfg.Output = OutputConfig{
		Locality:    domain.Locality(v.GetString("output.locality")),
		Path:        v.GetString("output.path"),
		Bucket:      v.GetString("output.bucket"),
		Format:      domain.OutputFormat(v.GetString("output.format")),
		LookupTable: v.GetBool("output.lookup_table"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.State = StateConfig{
		Backend:    domain.StateBackend(v.GetString("state.backend")),
		SQLitePath: v.GetString("state.sqlite_path"),
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
	cfg.Retry = RetryConfig{
		MaxAttempts: v.GetInt("retry.max_attempts"),
		BaseBackoff: v.GetDuration("retry.base_backoff"),
		MaxBackoff:  v.GetDuration("retry.max_backoff"),
	}
	cfg.Quality = QualityConfig{
		MissingTitlesPct:     v.GetFloat64("quality.missing_titles_pct"),
		MissingAbstractsPct:  v.GetFloat64("quality.missing_abstracts_pct"),
		MissingCategoriesPct: v.GetFloat64("quality.missing_categories_pct"),
		MissingAuthorsPct:    v.GetFloat64("quality.missing_authors_pct"),
	}
	cfg.Metrics = MetricsConfig{
		ListenAddr:     v.GetString("metrics.listen_addr"),
		PushgatewayURL: v.GetString("metrics.pushgateway_url"),
		JobName:        v.GetString("metrics.job_name"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	return cfg, nil
}

// Validate reports configuration-class errors. Every returned error wraps
// domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string

	switch c.Pipeline.Mode {
	case domain.RunModeHistory:
		if c.Input.Path == "" {
			problems = append(problems, "input.path is required in history mode")
		}
	case domain.RunModeDaily:
		from, errFrom := domain.ParseDate(c.Input.FromDate)
		to, errTo := domain.ParseDate(c.Input.ToDate)
		if errFrom != nil || errTo != nil {
			problems = append(problems, "input.from_date and input.to_date must be YYYY-MM-DD in daily mode")
		} else if !from.Before(to) {
			problems = append(problems, "input.from_date must be before input.to_date")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown pipeline.mode %q", c.Pipeline.Mode))
	}

	if c.Pipeline.ChunkSize <= 0 {
		problems = append(problems, "pipeline.chunk_size must be positive")
	}
	if c.Pipeline.Workers <= 0 {
		problems = append(problems, "pipeline.workers must be positive")
	}
	if c.Pipeline.MaxBatchSize <= 0 {
		problems = append(problems, "pipeline.max_batch_size must be positive")
	}
	if c.Pipeline.StartPart < 0 || c.Pipeline.StartOffset < 0 {
		problems = append(problems, "pipeline start position must not be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		problems = append(problems, "retry.max_attempts must be positive")
	}
	if c.Retry.BaseBackoff < 0 || c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		problems = append(problems, "retry backoff must satisfy 0 <= base_backoff <= max_backoff")
	}

	problems = append(problems, checkLocality("input", c.Input.Locality, c.Input.Bucket)...)
	problems = append(problems, checkLocality("output", c.Output.Locality, c.Output.Bucket)...)

	switch c.Output.Format {
	case domain.OutputFormatParquet, domain.OutputFormatJSONL, domain.OutputFormatCSV:
	default:
		problems = append(problems, fmt.Sprintf("unknown output.format %q", c.Output.Format))
	}

	switch c.State.Backend {
	case domain.StateBackendMemory, domain.StateBackendPostgres:
	case domain.StateBackendSQLite:
		if c.State.SQLitePath == "" {
			problems = append(problems, "state.sqlite_path is required for the sqlite backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown state.backend %q", c.State.Backend))
	}
	if c.Output.LookupTable && c.State.Backend == domain.StateBackendMemory {
		problems = append(problems, "output.lookup_table requires a sqlite or postgres state backend")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func checkLocality(section string, l domain.Locality, bucket string) []string {
	switch l {
	case domain.LocalityLocal:
		return nil
	case domain.LocalityRemote:
		if bucket == "" {
			return []string{section + ".bucket is required for remote locality"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("unknown %s.locality %q", section, l)}
	}
}
