package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the shopdex API configuration.
type Config struct {
	HTTP            HTTPConfig            `yaml:"http"`
	Database        DatabaseConfig        `yaml:"database"`
	Embedding       EmbeddingConfig       `yaml:"embedding"`
	Generation      GenerationConfig      `yaml:"generation"`
	Auth            AuthConfig            `yaml:"auth"`
	Pipeline        PipelineConfig        `yaml:"pipeline"`
	Retrieval       RetrievalConfig       `yaml:"retrieval"`
	Ranking         RankingConfig         `yaml:"ranking"`
	Personalization PersonalizationConfig `yaml:"personalization"`
	Suggest         SuggestConfig         `yaml:"suggest"`
	Guard           GuardConfig           `yaml:"guard"`
	Catalog         CatalogConfig         `yaml:"catalog"`
	Logging         LoggingConfig         `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// GuardConfig bounds the merchandising policy price-sanity check.
type GuardConfig struct {
	MinPrice float64 `yaml:"min_price"`
	MaxPrice float64 `yaml:"max_price"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
}

// GenerationConfig holds chat completion settings for result explanations.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// PipelineConfig holds per-stage deadlines and the output cap.
type PipelineConfig struct {
	PlanTimeoutMs        int `yaml:"plan_timeout_ms"`
	RetrieveTimeoutMs    int `yaml:"retrieve_timeout_ms"`
	PersonalizeTimeoutMs int `yaml:"personalize_timeout_ms"`
	RankTimeoutMs        int `yaml:"rank_timeout_ms"`
	ExplainTimeoutMs     int `yaml:"explain_timeout_ms"`
	MaxProducts          int `yaml:"max_products"`
}

// RetrievalConfig holds vector search settings.
type RetrievalConfig struct {
	TopK          int `yaml:"top_k"`
	Oversample    int `yaml:"oversample"`     // multiplier when filters are applied post-search
	MinViable     int `yaml:"min_viable"`     // below this, constraint relaxation kicks in
	MaxCandidates int `yaml:"max_candidates"` // candidate set capacity
	Attempts      int `yaml:"attempts"`       // search attempts before giving up
}

// RankingConfig holds score fusion weights. Alpha weighs similarity, beta
// personalization, gamma the constraint bonus; they must sum to 1.
type RankingConfig struct {
	Alpha   float64 `yaml:"alpha"`
	Beta    float64 `yaml:"beta"`
	Gamma   float64 `yaml:"gamma"`
	Epsilon float64 `yaml:"epsilon"` // scores closer than this tie-break deterministically
}

// PersonalizationConfig holds the per-signal weights of the profile match
// score. Weights must sum to 1.
type PersonalizationConfig struct {
	CategoryWeight float64 `yaml:"category_weight"`
	BrandWeight    float64 `yaml:"brand_weight"`
	PriceWeight    float64 `yaml:"price_weight"`
	SessionWeight  float64 `yaml:"session_weight"`
}

// SuggestConfig holds query autocomplete settings.
type SuggestConfig struct {
	Limit        int `yaml:"limit"`
	MinPrefixLen int `yaml:"min_prefix_len"`
}

// CatalogConfig holds product index settings and the optional seed file
// loaded when the index is first created.
type CatalogConfig struct {
	SeedFile        string `yaml:"seed_file"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construct"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 300
	}
	if c.Pipeline.PlanTimeoutMs <= 0 {
		c.Pipeline.PlanTimeoutMs = 50
	}
	if c.Pipeline.RetrieveTimeoutMs <= 0 {
		c.Pipeline.RetrieveTimeoutMs = 800
	}
	if c.Pipeline.PersonalizeTimeoutMs <= 0 {
		c.Pipeline.PersonalizeTimeoutMs = 200
	}
	if c.Pipeline.RankTimeoutMs <= 0 {
		c.Pipeline.RankTimeoutMs = 20
	}
	if c.Pipeline.ExplainTimeoutMs <= 0 {
		c.Pipeline.ExplainTimeoutMs = 500
	}
	if c.Pipeline.MaxProducts <= 0 {
		c.Pipeline.MaxProducts = 10
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 10
	}
	if c.Retrieval.Oversample <= 0 {
		c.Retrieval.Oversample = 3
	}
	if c.Retrieval.MinViable <= 0 {
		c.Retrieval.MinViable = 5
	}
	if c.Retrieval.MaxCandidates <= 0 {
		c.Retrieval.MaxCandidates = 50
	}
	if c.Retrieval.Attempts <= 0 {
		c.Retrieval.Attempts = 2
	}
	if c.Ranking.Alpha == 0 && c.Ranking.Beta == 0 && c.Ranking.Gamma == 0 {
		c.Ranking.Alpha = 0.5
		c.Ranking.Beta = 0.3
		c.Ranking.Gamma = 0.2
	}
	if c.Ranking.Epsilon <= 0 {
		c.Ranking.Epsilon = 1e-9
	}
	p := &c.Personalization
	if p.CategoryWeight == 0 && p.BrandWeight == 0 && p.PriceWeight == 0 && p.SessionWeight == 0 {
		p.CategoryWeight = 0.40
		p.BrandWeight = 0.20
		p.PriceWeight = 0.25
		p.SessionWeight = 0.15
	}
	if c.Suggest.Limit <= 0 {
		c.Suggest.Limit = 8
	}
	if c.Suggest.MinPrefixLen <= 0 {
		c.Suggest.MinPrefixLen = 2
	}
	if c.Catalog.HNSWM <= 0 {
		c.Catalog.HNSWM = 16
	}
	if c.Catalog.HNSWEFConstruct <= 0 {
		c.Catalog.HNSWEFConstruct = 200
	}
	if c.Guard.MinPrice <= 0 {
		c.Guard.MinPrice = 1
	}
	if c.Guard.MaxPrice <= 0 {
		c.Guard.MaxPrice = 100000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if sum := c.Ranking.Alpha + c.Ranking.Beta + c.Ranking.Gamma; !sumsToOne(sum) {
		return fmt.Errorf("ranking weights must sum to 1, got %g", sum)
	}
	p := c.Personalization
	if sum := p.CategoryWeight + p.BrandWeight + p.PriceWeight + p.SessionWeight; !sumsToOne(sum) {
		return fmt.Errorf("personalization weights must sum to 1, got %g", sum)
	}
	if c.Retrieval.MinViable > c.Retrieval.TopK {
		return fmt.Errorf(
			"retrieval.min_viable (%d) cannot exceed retrieval.top_k (%d)",
			c.Retrieval.MinViable, c.Retrieval.TopK,
		)
	}
	if c.Guard.MinPrice >= c.Guard.MaxPrice {
		return fmt.Errorf(
			"guard.min_price (%g) must be below guard.max_price (%g)",
			c.Guard.MinPrice, c.Guard.MaxPrice,
		)
	}
	return nil
}

func sumsToOne(sum float64) bool {
	const tolerance = 1e-6
	return sum > 1-tolerance && sum < 1+tolerance
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
