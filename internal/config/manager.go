package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DSRAG_OLLAMA_MODEL
const EnvPrefix = "DSRAG"

// Manager loads configuration with viper and reloads it on file changes
type Manager struct {
	configPath string
	envFile    string
	viper      *viper.Viper
	logger     *zap.Logger

	mu     sync.RWMutex
	config *Config
}

// NewManager creates a manager for the YAML file at configPath.
// The file is optional. envFile names a .env file loaded before the environment is read.
func NewManager(configPath, envFile string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		configPath: configPath,
		envFile:    envFile,
		logger:     logger.Named("config"),
	}
}

// Load loads configuration from all sources and validates it
func (m *Manager) Load() (*Config, error) {
	if m.envFile != "" {
		if err := godotenv.Load(m.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file: %w", err)
		}
	}

	m.viper = viper.New()
	m.viper.SetConfigType("yaml")
	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()
	setDefaults(m.viper, DefaultConfig())

	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
		if err := m.viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			m.logger.Debug("config file not found, using defaults", zap.String("path", m.configPath))
		}
	}

	cfg, err := m.unmarshal()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return cfg, nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Watch reloads the file on change and calls onChange with each valid new configuration.
// Invalid edits are logged and ignored.
func (m *Manager) Watch(onChange func(*Config)) {
	if m.viper == nil || m.viper.ConfigFileUsed() == "" {
		return
	}
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := m.unmarshal()
		if err != nil {
			m.logger.Warn("ignoring invalid configuration change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		m.mu.Lock()
		m.config = cfg
		m.mu.Unlock()
		m.logger.Info("configuration reloaded", zap.String("file", e.Name))
		if onChange != nil {
			onChange(cfg)
		}
	})
	m.viper.WatchConfig()
}

// Dump writes the effective settings as YAML with secrets redacted
func (m *Manager) Dump(w io.Writer) error {
	if m.viper == nil {
		return errors.New("configuration not loaded")
	}
	settings := m.viper.AllSettings()
	if emb, ok := settings["embedding"].(map[string]any); ok {
		if key, _ := emb["api_key"].(string); key != "" {
			emb["api_key"] = "********"
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

func (m *Manager) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := m.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.ValidateAll(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is a shortcut for NewManager(configPath, ".env", nil).Load()
func Load(configPath string) (*Config, error) {
	return NewManager(configPath, ".env", nil).Load()
}

// setDefaults registers every key so environment variables can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.upload_dir", d.Storage.UploadDir)
	v.SetDefault("storage.db_path", d.Storage.DBPath)

	v.SetDefault("chunking.size", d.Chunking.Size)
	v.SetDefault("chunking.overlap", d.Chunking.Overlap)

	v.SetDefault("upload.max_file_size", d.Upload.MaxFileSize)
	v.SetDefault("upload.allowed_extensions", d.Upload.AllowedExtensions)

	v.SetDefault("rag.top_k", d.RAG.TopK)
	v.SetDefault("rag.temperature", d.RAG.Temperature)
	v.SetDefault("rag.max_context_length", d.RAG.MaxContextLength)
	v.SetDefault("rag.prompt_language", d.RAG.PromptLanguage)
	v.SetDefault("rag.retrieval_timeout", d.RAG.RetrievalTimeout)
	v.SetDefault("rag.generation_timeout", d.RAG.GenerationTimeout)

	v.SetDefault("ollama.host", d.Ollama.Host)
	v.SetDefault("ollama.model", d.Ollama.Model)
	v.SetDefault("ollama.timeout", d.Ollama.Timeout)
	v.SetDefault("ollama.num_predict", d.Ollama.NumPredict)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)

	v.SetDefault("search.mode", d.Search.Mode)
	v.SetDefault("search.fusion", d.Search.Fusion)
	v.SetDefault("search.vector_weight", d.Search.VectorWeight)
	v.SetDefault("search.keyword_weight", d.Search.KeywordWeight)
	v.SetDefault("search.rrf_constant", d.Search.RRFConstant)
	v.SetDefault("search.cache_ttl", d.Search.CacheTTL)
	v.SetDefault("search.cache_size", d.Search.CacheSize)

	v.SetDefault("vector_index.ivf_threshold", d.VectorIndex.IVFThreshold)
	v.SetDefault("vector_index.nprobe", d.VectorIndex.NProbe)
	v.SetDefault("vector_index.iterations", d.VectorIndex.Iterations)
	v.SetDefault("vector_index.seed", d.VectorIndex.Seed)

	v.SetDefault("workers.pool_size", d.Workers.PoolSize)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.console", d.Logging.Console)
}
