package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"

	"github.com/dvloznov/agro-tracker/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VSEGPT_API_KEY", "")

	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := config.Default()
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agro.yaml")
	content := `
ledger:
  dir: /srv/ledger
  lock: true
extraction:
  provider: Gemini
  project: farm-42
  api_key_env: TEST_AGRO_KEY
queue:
  workers: 0
  store: sqlite
  sqlite_path: /srv/jobs.db
evaluation:
  train_size: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TEST_AGRO_KEY", "from-env-name")
	t.Setenv("AGRO_INBOX_DIR", "/srv/inbox")
	t.Setenv("AGRO_LOG_LEVEL", "debug")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("ledger-dir", "", "")
	fs.Int64("seed", 0, "")
	fs.Int("train-size", 9, "")
	if err := fs.Parse([]string{"--seed=7"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := config.Load(path, fs)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"ledger dir from file", cfg.Ledger.Dir, "/srv/ledger"},
		{"lock from file", cfg.Ledger.Lock, true},
		{"provider lower-cased", cfg.Extraction.Provider, config.ProviderGemini},
		{"api key from named env", cfg.Extraction.APIKey, "from-env-name"},
		{"workers clamped", cfg.Queue.Workers, 1},
		{"store", cfg.Queue.Store, config.StoreSQLite},
		{"inbox from AGRO env", cfg.Inbox.Dir, "/srv/inbox"},
		{"log level from AGRO env", cfg.LogLevel, "debug"},
		{"seed from changed flag", cfg.Evaluation.Seed, int64(7)},
		{"unchanged flag keeps file value", cfg.Evaluation.TrainSize, 3},
		{"default kept", cfg.Ledger.Sheet, "Отчёт"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := cfg.ValidateExtractionKey(); err != nil {
		t.Errorf("ValidateExtractionKey() error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"), nil); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"empty ledger dir", func(c *config.Config) { c.Ledger.Dir = " " }, "ledger.dir"},
		{"bad fallback", func(c *config.Config) { c.Ledger.FallbackDate = "yesterday" }, "ledger.fallback_date"},
		{"no reference", func(c *config.Config) { c.Reference.Path = "" }, "reference.path"},
		{"bad provider", func(c *config.Config) { c.Extraction.Provider = "local" }, "extraction.provider"},
		{"bad temperature", func(c *config.Config) { c.Extraction.Temperature = 3 }, "temperature"},
		{"bad store", func(c *config.Config) { c.Queue.Store = "redis" }, "queue.store"},
		{"sqlite without path", func(c *config.Config) {
			c.Queue.Store = config.StoreSQLite
			c.Queue.SQLitePath = ""
		}, "queue.sqlite_path"},
		{"zero capacity", func(c *config.Config) { c.Queue.Capacity = 0 }, "queue.capacity"},
		{"negative train size", func(c *config.Config) { c.Evaluation.TrainSize = -1 }, "train_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSections(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidateExtractionKey(); err == nil {
		t.Error("ValidateExtractionKey() error = nil, want missing key")
	}
	if err := cfg.ValidateBigQuery(); err == nil {
		t.Error("ValidateBigQuery() error = nil, want missing project")
	}
	if err := cfg.ValidatePostgres(); err == nil {
		t.Error("ValidatePostgres() error = nil, want missing dsn")
	}
	if err := cfg.ValidateNotion(); err == nil {
		t.Error("ValidateNotion() error = nil, want missing token")
	}

	cfg.Extraction.APIKey = "k"
	cfg.BigQuery.Project = "p"
	cfg.Postgres.DSN = "postgres://localhost/agro"
	cfg.Notion.Token = "t"
	cfg.Notion.DatabaseID = "db"
	for name, err := range map[string]error{
		"extraction": cfg.ValidateExtractionKey(),
		"bigquery":   cfg.ValidateBigQuery(),
		"postgres":   cfg.ValidatePostgres(),
		"notion":     cfg.ValidateNotion(),
	} {
		if err != nil {
			t.Errorf("%s: error = %v", name, err)
		}
	}
}
