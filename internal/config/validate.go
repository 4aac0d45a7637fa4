package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the settings every command relies on are usable.
func (c *Config) Validate() error {
	if err := c.validateLedger(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Reference.Path) == "" {
		return errors.New("reference.path must be set")
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if c.Evaluation.TrainSize < 0 {
		return errors.New("evaluation.train_size must not be negative")
	}
	return nil
}

// ValidateExtractionKey checks the credentials of the configured provider.
// Commands that call the extraction service run it after Validate.
func (c *Config) ValidateExtractionKey() error {
	switch c.Extraction.Provider {
	case ProviderOpenAI:
		if c.Extraction.APIKey == "" {
			return fmt.Errorf("extraction.api_key is required for provider %q. Set %s or AGRO_EXTRACTION_API_KEY", ProviderOpenAI, c.Extraction.APIKeyEnv)
		}
	case ProviderGemini:
		if c.Extraction.Project == "" {
			return fmt.Errorf("extraction.project is required for provider %q", ProviderGemini)
		}
	}
	return nil
}

// ValidateBigQuery checks the warehouse settings.
func (c *Config) ValidateBigQuery() error {
	if c.BigQuery.Project == "" {
		return errors.New("bigquery.project must be set")
	}
	if c.BigQuery.Dataset == "" {
		return errors.New("bigquery.dataset must be set")
	}
	return nil
}

// ValidatePostgres checks the operations database settings.
func (c *Config) ValidatePostgres() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn must be set")
	}
	return nil
}

// ValidateNotion checks the review board settings.
func (c *Config) ValidateNotion() error {
	if c.Notion.Token == "" {
		return errors.New("notion.token must be set")
	}
	if c.Notion.DatabaseID == "" {
		return errors.New("notion.database_id must be set")
	}
	return nil
}

func (c *Config) validateLedger() error {
	if strings.TrimSpace(c.Ledger.Dir) == "" {
		return errors.New("ledger.dir must be set")
	}
	switch c.Ledger.FallbackDate {
	case FallbackReceived, FallbackToday:
	default:
		return fmt.Errorf("ledger.fallback_date must be %q or %q, got %q", FallbackReceived, FallbackToday, c.Ledger.FallbackDate)
	}
	return nil
}

func (c *Config) validateExtraction() error {
	switch c.Extraction.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("extraction.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Extraction.Provider)
	}
	if c.Extraction.Temperature < 0 || c.Extraction.Temperature > 2 {
		return errors.New("extraction.temperature must be between 0 and 2")
	}
	if c.Extraction.TimeoutSeconds < 0 {
		return errors.New("extraction.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Capacity <= 0 {
		return errors.New("queue.capacity must be positive")
	}
	switch c.Queue.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.Queue.SQLitePath) == "" {
			return errors.New("queue.sqlite_path must be set when queue.store is sqlite")
		}
	default:
		return fmt.Errorf("queue.store must be %q or %q, got %q", StoreMemory, StoreSQLite, c.Queue.Store)
	}
	return nil
}
