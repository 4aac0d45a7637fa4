package config

import "github.com/spf13/viper"

const (
	defaultLedgerDir       = "ledger"
	defaultLedgerSheet     = "Отчёт"
	defaultFallbackDate    = FallbackReceived
	defaultReferencePath   = "configs/reference.yaml"
	defaultProvider        = ProviderOpenAI
	defaultAPIKeyEnv       = "VSEGPT_API_KEY"
	defaultTemperature     = 0.1
	defaultTitle           = "Agro Message Parser"
	defaultTimeoutSeconds  = 120
	defaultGeminiLocation  = "us-central1"
	defaultServerAddr      = ":8080"
	defaultQueueCapacity   = 100
	defaultQueueWorkers    = 1
	defaultQueueStore      = StoreMemory
	defaultSQLitePath      = "jobs.db"
	defaultInboxDir        = "messages"
	defaultGCSPrefix       = "ledger"
	defaultBigQueryDataset = "agro"
	defaultTrainSize       = 5
	defaultSeed            = 42
	defaultOutputDir       = "reports"
	defaultLogLevel        = "info"
)

// Provider names accepted in extraction.provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Job store names accepted in queue.store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Fallback date policies accepted in ledger.fallback_date.
const (
	FallbackReceived = "received"
	FallbackToday    = "today"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Ledger: Ledger{
			Dir:          defaultLedgerDir,
			Sheet:        defaultLedgerSheet,
			FallbackDate: defaultFallbackDate,
		},
		Reference: Reference{Path: defaultReferencePath},
		Extraction: Extraction{
			Provider:       defaultProvider,
			APIKeyEnv:      defaultAPIKeyEnv,
			Temperature:    defaultTemperature,
			Title:          defaultTitle,
			TimeoutSeconds: defaultTimeoutSeconds,
			Location:       defaultGeminiLocation,
		},
		Server: Server{Addr: defaultServerAddr},
		Queue: Queue{
			Capacity:   defaultQueueCapacity,
			Workers:    defaultQueueWorkers,
			Store:      defaultQueueStore,
			SQLitePath: defaultSQLitePath,
		},
		Inbox:    Inbox{Dir: defaultInboxDir},
		GCS:      GCS{Prefix: defaultGCSPrefix},
		BigQuery: BigQuery{Dataset: defaultBigQueryDataset},
		Evaluation: Evaluation{
			TrainSize: defaultTrainSize,
			Seed:      defaultSeed,
			OutputDir: defaultOutputDir,
		},
		LogLevel: defaultLogLevel,
	}
}

// setDefaults registers every key with viper. Keys without a default are
// registered empty so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("ledger.dir", d.Ledger.Dir)
	v.SetDefault("ledger.sheet", d.Ledger.Sheet)
	v.SetDefault("ledger.fallback_date", d.Ledger.FallbackDate)
	v.SetDefault("ledger.lock", d.Ledger.Lock)

	v.SetDefault("reference.path", d.Reference.Path)

	v.SetDefault("extraction.provider", d.Extraction.Provider)
	v.SetDefault("extraction.model", "")
	v.SetDefault("extraction.base_url", "")
	v.SetDefault("extraction.api_key", "")
	v.SetDefault("extraction.api_key_env", d.Extraction.APIKeyEnv)
	v.SetDefault("extraction.temperature", d.Extraction.Temperature)
	v.SetDefault("extraction.title", d.Extraction.Title)
	v.SetDefault("extraction.timeout_seconds", d.Extraction.TimeoutSeconds)
	v.SetDefault("extraction.project", "")
	v.SetDefault("extraction.location", d.Extraction.Location)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("queue.capacity", d.Queue.Capacity)
	v.SetDefault("queue.workers", d.Queue.Workers)
	v.SetDefault("queue.store", d.Queue.Store)
	v.SetDefault("queue.sqlite_path", d.Queue.SQLitePath)

	v.SetDefault("inbox.dir", d.Inbox.Dir)

	v.SetDefault("gcs.bucket", "")
	v.SetDefault("gcs.prefix", d.GCS.Prefix)

	v.SetDefault("bigquery.project", "")
	v.SetDefault("bigquery.dataset", d.BigQuery.Dataset)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")

	v.SetDefault("evaluation.train_size", d.Evaluation.TrainSize)
	v.SetDefault("evaluation.seed", d.Evaluation.Seed)
	v.SetDefault("evaluation.output_dir", d.Evaluation.OutputDir)

	v.SetDefault("log_level", d.LogLevel)
}
