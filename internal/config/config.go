// Package config loads service configuration from a YAML file, a .env file and
// DSRAG_* environment variables, in increasing order of precedence.
package config

import (
	"time"
)

// Config is the complete service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Chunking    ChunkingConfig    `mapstructure:"chunking"`
	Upload      UploadConfig      `mapstructure:"upload"`
	RAG         RAGConfig         `mapstructure:"rag"`
	Ollama      OllamaConfig      `mapstructure:"ollama"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Search      SearchConfig      `mapstructure:"search"`
	VectorIndex VectorIndexConfig `mapstructure:"vector_index"`
	Workers     WorkersConfig     `mapstructure:"workers"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig holds filesystem and database locations
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	UploadDir string `mapstructure:"upload_dir"`
	DBPath    string `mapstructure:"db_path"`
}

// ChunkingConfig holds text splitting parameters
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// UploadConfig limits accepted uploads
type UploadConfig struct {
	MaxFileSize       int64    `mapstructure:"max_file_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// RAGConfig holds answer generation settings
type RAGConfig struct {
	TopK              int           `mapstructure:"top_k"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxContextLength  int           `mapstructure:"max_context_length"`
	PromptLanguage    string        `mapstructure:"prompt_language"`
	RetrievalTimeout  time.Duration `mapstructure:"retrieval_timeout"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
}

// OllamaConfig holds the generation model server settings
type OllamaConfig struct {
	Host       string        `mapstructure:"host"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	NumPredict int           `mapstructure:"num_predict"`
}

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Dimension int           `mapstructure:"dimension"`
	CacheSize int           `mapstructure:"cache_size"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SearchConfig holds hybrid search defaults
type SearchConfig struct {
	Mode          string        `mapstructure:"mode"`
	Fusion        string        `mapstructure:"fusion"`
	VectorWeight  float64       `mapstructure:"vector_weight"`
	KeywordWeight float64       `mapstructure:"keyword_weight"`
	RRFConstant   float64       `mapstructure:"rrf_constant"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheSize     int           `mapstructure:"cache_size"`
}

// VectorIndexConfig tunes the in-memory ANN index
type VectorIndexConfig struct {
	IVFThreshold int   `mapstructure:"ivf_threshold"`
	NProbe       int   `mapstructure:"nprobe"`
	Iterations   int   `mapstructure:"iterations"`
	Seed         int64 `mapstructure:"seed"`
}

// WorkersConfig sizes the background processing pool
type WorkersConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// LoggingConfig holds log level, file and rotation settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}
