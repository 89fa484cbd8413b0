package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Llama   LlamaConfig
	OpenAI  OpenAIConfig
	OCR     OCRConfig
	Metrics MetricsConfig
	Rubro   RubroConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	// AttemptTimeout bounds each backend extraction attempt; zero
	// leaves only the request context deadline in force.
	AttemptTimeout time.Duration
}

// LlamaConfig holds Llama Cloud extraction-agent configuration
type LlamaConfig struct {
	APIKey       string
	BaseURL      string
	AgentName    string
	PollInterval time.Duration
	Timeout      time.Duration
}

// OpenAIConfig holds OpenAI chat/completions configuration
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OCRConfig holds local OCR configuration
type OCRConfig struct {
	Pdftotext     string
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	DPI           int
	MaxPages      int
	Timeout       time.Duration
}

// MetricsConfig holds metrics aggregation and archiving configuration
type MetricsConfig struct {
	ArchiveDSN      string
	ArchiveInterval time.Duration
	RecentLimit     int
}

// RubroConfig holds rubro nomenclator configuration
type RubroConfig struct {
	NomenclatorPath string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			AttemptTimeout: getEnvAsDuration("EXTRACT_ATTEMPT_TIMEOUT", 4*time.Minute),
		},
		Llama: LlamaConfig{
			APIKey:       getEnv("LLAMA_API_KEY", ""),
			BaseURL:      getEnv("LLAMA_BASE_URL", "https://api.cloud.llamaindex.ai/api/v1"),
			AgentName:    getEnv("LLAMA_AGENT_NAME", "invoice_parser"),
			PollInterval: getEnvAsDuration("LLAMA_POLL_INTERVAL", 3*time.Second),
			Timeout:      getEnvAsDuration("LLAMA_TIMEOUT", 3*time.Minute),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		OCR: OCRConfig{
			Pdftotext:     getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "spa"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 0),
			Timeout:       getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
		},
		Metrics: MetricsConfig{
			ArchiveDSN:      getEnv("METRICS_ARCHIVE_DSN", ""),
			ArchiveInterval: getEnvAsDuration("METRICS_ARCHIVE_INTERVAL", 5*time.Minute),
			RecentLimit:     getEnvAsInt("METRICS_RECENT_LIMIT", 50),
		},
		Rubro: RubroConfig{
			NomenclatorPath: getEnv("RUBRO_NOMENCLATOR_PATH", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration. Backends without
// credentials are allowed; they simply report themselves unavailable.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Metrics.ArchiveDSN != "" && c.Metrics.ArchiveInterval <= 0 {
		return NewAppError("CONFIG_ERROR", "METRICS_ARCHIVE_INTERVAL must be positive", ErrInvalidInput)
	}
	if c.Metrics.RecentLimit <= 0 {
		return NewAppError("CONFIG_ERROR", "METRICS_RECENT_LIMIT must be positive", ErrInvalidInput)
	}
	return nil
}
