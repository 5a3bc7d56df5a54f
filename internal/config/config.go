// Package config loads service configuration from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g.
// BREAKDOWN_INGEST_CHUNK_SIZE.
const EnvPrefix = "BREAKDOWN"

type Config struct {
	Server  ServerConfig     `mapstructure:"server"`
	LLM     LLMConfig        `mapstructure:"llm"`
	Ingest  IngestConfig     `mapstructure:"ingest"`
	Summary SummaryConfig    `mapstructure:"summary"`
	Storage StorageConfig    `mapstructure:"storage"`
	Zotero  ZoteroConfig     `mapstructure:"zotero"`
	Log     logger.LogConfig `mapstructure:"log"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	UploadDir   string   `mapstructure:"upload_dir"`
	MaxFiles    int      `mapstructure:"max_files"`
	MaxBodySize int64    `mapstructure:"max_body_size"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	Release     bool     `mapstructure:"release"`
}

type LLMConfig struct {
	// Provider is "anthropic" or "openai"
	Provider             string  `mapstructure:"provider"`
	APIKey               string  `mapstructure:"api_key"`
	Model                string  `mapstructure:"model"`
	BaseURL              string  `mapstructure:"base_url"`
	MaxOutputTokens      int     `mapstructure:"max_output_tokens"`
	NotesMaxOutputTokens int     `mapstructure:"notes_max_output_tokens"`
	TokensPerSecond      float64 `mapstructure:"tokens_per_second"`
	BurstTokens          int     `mapstructure:"burst_tokens"`
	MaxRetries           int     `mapstructure:"max_retries"`
}

// IngestConfig holds the document-ingestion knobs. The visual-fallback
// thresholds are heuristics and depend on the corpus.
type IngestConfig struct {
	ChunkSize        int    `mapstructure:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap"`
	MinTextChars     int    `mapstructure:"min_text_chars"`
	MinCharsPerPage  int    `mapstructure:"min_chars_per_page"`
	MaxSampledPages  int    `mapstructure:"max_sampled_pages"`
	RenderDPI        int    `mapstructure:"render_dpi"`
	RenderQuality    int    `mapstructure:"render_quality"`
	RasterizerBinary string `mapstructure:"rasterizer_binary"`
	ExtractorBackend string `mapstructure:"extractor_backend"`
}

type SummaryConfig struct {
	MultiPassThreshold int `mapstructure:"multi_pass_threshold"`
	NotesConcurrency   int `mapstructure:"notes_concurrency"`
}

type StorageConfig struct {
	// SessionDBPath enables server-held sessions when set
	SessionDBPath string `mapstructure:"session_db_path"`
}

type ZoteroConfig struct {
	APIKey    string `mapstructure:"api_key"`
	LibraryID string `mapstructure:"library_id"`
}

// providerKeyEnv names the vendor-conventional credential variable per
// provider, consulted when no key is configured explicitly.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

var providerDefaultModel = map[string]string{
	"anthropic": "claude-sonnet-4-5",
	"openai":    "gpt-5-mini",
}

// Load reads configuration. path may be empty, in which case BREAKDOWN_CONFIG
// is consulted; a missing file is only an error when explicitly requested.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// vendor-conventional names for credentials
	bindings := map[string][]string{
		"llm.api_key":       {EnvPrefix + "_LLM_API_KEY"},
		"zotero.api_key":    {EnvPrefix + "_ZOTERO_API_KEY", "ZOTERO_API_KEY"},
		"zotero.library_id": {EnvPrefix + "_ZOTERO_LIBRARY_ID", "ZOTERO_LIBRARY_ID"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(providerKeyEnv[cfg.LLM.Provider])
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = providerDefaultModel[cfg.LLM.Provider]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.max_files", 10)
	v.SetDefault("server.max_body_size", 200<<20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.release", false)

	v.SetDefault("llm.provider", "anthropic")
	// empty means the provider default
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_output_tokens", 8000)
	v.SetDefault("llm.notes_max_output_tokens", 2000)
	v.SetDefault("llm.tokens_per_second", 10000)
	v.SetDefault("llm.burst_tokens", 200000)
	v.SetDefault("llm.max_retries", 4)

	v.SetDefault("ingest.chunk_size", 12000)
	v.SetDefault("ingest.chunk_overlap", 600)
	v.SetDefault("ingest.min_text_chars", 1000)
	v.SetDefault("ingest.min_chars_per_page", 200)
	v.SetDefault("ingest.max_sampled_pages", 6)
	v.SetDefault("ingest.render_dpi", 110)
	v.SetDefault("ingest.render_quality", 70)
	v.SetDefault("ingest.rasterizer_binary", "pdftoppm")
	v.SetDefault("ingest.extractor_backend", "ledongthuc")

	v.SetDefault("summary.multi_pass_threshold", 60000)
	v.SetDefault("summary.notes_concurrency", 4)

	v.SetDefault("storage.session_db_path", "")

	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "")
}

// Validate checks the knobs that would make the pipeline misbehave
func (c *Config) Validate() error {
	var errs []error
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, errors.New("ingest.chunk_size must be positive"))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, errors.New("ingest.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.Ingest.MaxSampledPages < 0 {
		errs = append(errs, errors.New("ingest.max_sampled_pages must not be negative"))
	}
	if c.Ingest.RenderQuality < 1 || c.Ingest.RenderQuality > 100 {
		errs = append(errs, errors.New("ingest.render_quality must be in [1, 100]"))
	}
	if c.Server.MaxFiles <= 0 {
		errs = append(errs, errors.New("server.max_files must be positive"))
	}
	if c.Summary.MultiPassThreshold <= 0 {
		errs = append(errs, errors.New("summary.multi_pass_threshold must be positive"))
	}
	if c.Summary.NotesConcurrency <= 0 {
		errs = append(errs, errors.New("summary.notes_concurrency must be positive"))
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	return errors.Join(errs...)
}
