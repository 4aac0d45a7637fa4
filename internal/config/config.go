// Package config loads agro-tracker settings from a config file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// AGRO_LEDGER_DIR for ledger.dir.
const EnvPrefix = "AGRO"

// Ledger contains settings for the xlsx ledger snapshots.
type Ledger struct {
	Dir   string `mapstructure:"dir"`
	Sheet string `mapstructure:"sheet"`

	// FallbackDate selects the date written when a record has none:
	// "received" uses the message timestamp, "today" the wall clock.
	FallbackDate string `mapstructure:"fallback_date"`

	// Lock makes binaries hold the directory writer lock while appending.
	Lock bool `mapstructure:"lock"`
}

// Reference points at the vocabulary and example file.
type Reference struct {
	Path string `mapstructure:"path"`
}

// Extraction contains settings for the extraction service.
type Extraction struct {
	Provider       string  `mapstructure:"provider"`
	Model          string  `mapstructure:"model"`
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	APIKeyEnv      string  `mapstructure:"api_key_env"`
	Temperature    float64 `mapstructure:"temperature"`
	Title          string  `mapstructure:"title"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	Project        string  `mapstructure:"project"`
	Location       string  `mapstructure:"location"`
}

// Server contains the HTTP intake settings.
type Server struct {
	Addr        string   `mapstructure:"addr"`
	APIKey      string   `mapstructure:"api_key"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Queue contains settings for the job queue and its store.
type Queue struct {
	Capacity   int    `mapstructure:"capacity"`
	Workers    int    `mapstructure:"workers"`
	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// Inbox is where raw messages are archived.
type Inbox struct {
	Dir string `mapstructure:"dir"`
}

// GCS contains settings for snapshot archival.
type GCS struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// BigQuery contains settings for the operations warehouse.
type BigQuery struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
}

// Postgres contains settings for the operations database.
type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

// Notion contains settings for the review board.
type Notion struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
}

// Evaluation contains settings for accuracy evaluation runs.
type Evaluation struct {
	TrainSize int    `mapstructure:"train_size"`
	Seed      int64  `mapstructure:"seed"`
	OutputDir string `mapstructure:"output_dir"`
}

// Config is the full agro-tracker configuration.
type Config struct {
	Ledger     Ledger     `mapstructure:"ledger"`
	Reference  Reference  `mapstructure:"reference"`
	Extraction Extraction `mapstructure:"extraction"`
	Server     Server     `mapstructure:"server"`
	Queue      Queue      `mapstructure:"queue"`
	Inbox      Inbox      `mapstructure:"inbox"`
	GCS        GCS        `mapstructure:"gcs"`
	BigQuery   BigQuery   `mapstructure:"bigquery"`
	Postgres   Postgres   `mapstructure:"postgres"`
	Notion     Notion     `mapstructure:"notion"`
	Evaluation Evaluation `mapstructure:"evaluation"`
	LogLevel   string     `mapstructure:"log_level"`
}

// Load reads the config file at path (TOML, YAML or JSON, by extension),
// applies AGRO_* environment overrides, then overrides from any changed
// flags in fs. An empty path skips the file. A missing explicit path is an
// error.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("Load: read config %s: %w", path, err)
		}
	}

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, fmt.Errorf("Load: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: decode config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"ledger-dir":     "ledger.dir",
	"reference":      "reference.path",
	"provider":       "extraction.provider",
	"model":          "extraction.model",
	"addr":           "server.addr",
	"workers":        "queue.workers",
	"inbox-dir":      "inbox.dir",
	"log-level":      "log_level",
	"train-size":     "evaluation.train_size",
	"seed":           "evaluation.seed",
	"output-dir":     "evaluation.output_dir",
	"lock":           "ledger.lock",
	"queue-store":    "queue.store",
	"gcs-bucket":     "gcs.bucket",
	"bq-project":     "bigquery.project",
	"bq-dataset":     "bigquery.dataset",
	"postgres-dsn":   "postgres.dsn",
	"notion-db":      "notion.database_id",
	"fallback-date":  "ledger.fallback_date",
	"ledger-sheet":   "ledger.sheet",
	"sqlite-path":    "queue.sqlite_path",
	"gcs-prefix":     "gcs.prefix",
	"queue-capacity": "queue.capacity",
}

// bindFlags binds only the flags the command defines, so unrelated commands
// do not shadow file values with flag defaults.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func (c *Config) normalize() {
	c.Extraction.Provider = strings.ToLower(strings.TrimSpace(c.Extraction.Provider))
	c.Queue.Store = strings.ToLower(strings.TrimSpace(c.Queue.Store))
	c.Ledger.FallbackDate = strings.ToLower(strings.TrimSpace(c.Ledger.FallbackDate))
	if c.Extraction.APIKey == "" && c.Extraction.APIKeyEnv != "" {
		c.Extraction.APIKey = os.Getenv(c.Extraction.APIKeyEnv)
	}
	if c.Queue.Workers < 1 {
		c.Queue.Workers = 1
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = nil
	}
}
