package runtime

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a guardian runtime.
//
// It includes settings for:
//   - LLM provider (replies, reflection, planning, deliberation)
//   - Embedding provider (semantic memory retrieval)
//   - Journal backend (memory persistence)
//   - The guardian roster and external-call timeout
//
// Example:
//
//	config := &runtime.Config{
//	    LLM: runtime.LLMConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "gpt-4o-mini",
//	    },
//	    Embedder: runtime.EmbedderConfig{
//	        Provider: "hash",
//	    },
//	    Journal: runtime.JournalConfig{
//	        Provider: "sqlite",
//	        SQLitePath: "./mindcore.db",
//	    },
//	}
type Config struct {
	// LLM contains LLM provider configuration.
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Journal contains journal backend configuration.
	Journal JournalConfig `json:"journal"`

	// Guardians is the persona roster. Defaults to the built-in council.
	Guardians []string `json:"guardians,omitempty"`

	// CallTimeout bounds every external capability call. Defaults to 30s.
	CallTimeout time.Duration `json:"call_timeout,omitempty"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: openai, ollama
type LLMConfig struct {
	// Provider is the LLM provider name (openai, ollama).
	Provider string `json:"provider"`

	// APIKey is the API key for the LLM provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use (e.g., "gpt-4o-mini", "llama3.1").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, hash. The hash provider is deterministic
// and needs no network or key, which makes it the default.
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, hash).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g., "text-embedding-3-small").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors.
	Dimensions int `json:"dimensions,omitempty"`
}

// JournalConfig contains configuration for the journal backend.
//
// Supported providers: memory, sqlite, postgres
type JournalConfig struct {
	// Provider is the journal provider name (memory, sqlite, postgres).
	Provider string `json:"provider"`

	// SQLitePath is the database file path for the sqlite provider.
	SQLitePath string `json:"sqlite_path,omitempty"`

	// Postgres connection settings for the postgres provider.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"db_name,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty"`
}

// DefaultGuardians is the built-in council roster.
var DefaultGuardians = []string{"gabriel", "michael", "raphael", "uriel"}

// DefaultCallTimeout bounds external capability calls when the
// configuration does not set one.
const DefaultCallTimeout = 30 * time.Second

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - JOURNAL_PROVIDER (memory, sqlite, postgres)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - GUARDIANS (comma-separated roster)
//   - CALL_TIMEOUT_SECONDS
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	llmProvider := getEnvOrDefault("LLM_PROVIDER", "openai")
	var llmBaseURL string
	var defaultModel string

	switch llmProvider {
	case "ollama":
		llmBaseURL = os.Getenv("OLLAMA_BASE_URL")
		if llmBaseURL == "" {
			llmBaseURL = "http://localhost:11434"
		}
		defaultModel = "llama3.1"
	default:
		llmBaseURL = os.Getenv("LLM_BASE_URL")
		defaultModel = "gpt-4o-mini"
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "hash")
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "0"))

	journalProvider := getEnvOrDefault("JOURNAL_PROVIDER", "memory")
	port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))

	var guardians []string
	if roster := os.Getenv("GUARDIANS"); roster != "" {
		for _, name := range strings.Split(roster, ",") {
			if name = strings.TrimSpace(name); name != "" {
				guardians = append(guardians, name)
			}
		}
	}

	timeoutSeconds, _ := strconv.Atoi(getEnvOrDefault("CALL_TIMEOUT_SECONDS", "30"))

	config := &Config{
		LLM: LLMConfig{
			Provider: llmProvider,
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", defaultModel),
			BaseURL:  llmBaseURL,
		},
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      os.Getenv("EMBEDDING_MODEL"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		Journal: JournalConfig{
			Provider:   journalProvider,
			SQLitePath: getEnvOrDefault("SQLITE_PATH", "./mindcore.db"),
			Host:       getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:       port,
			User:       getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password:   os.Getenv("POSTGRES_PASSWORD"),
			DBName:     getEnvOrDefault("POSTGRES_DATABASE", "mindcore"),
			SSLMode:    getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		},
		Guardians:   guardians,
		CallTimeout: time.Duration(timeoutSeconds) * time.Second,
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewRuntimeError("LoadConfigFromEnvFile", err)
	}
	return LoadConfigFromEnv()
}

// Validate validates the configuration.
//
// Checks that all required fields are set:
//   - LLM provider must be specified
//   - Embedder provider must be specified
//   - Journal provider must be specified
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return NewRuntimeError("Validate", ErrInvalidConfig)
	}
	if c.Embedder.Provider == "" {
		return NewRuntimeError("Validate", ErrInvalidConfig)
	}
	if c.Journal.Provider == "" {
		return NewRuntimeError("Validate", ErrInvalidConfig)
	}
	if c.CallTimeout < 0 {
		return NewRuntimeError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
