package config

import "time"

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:8000"},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 300 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:   "./data",
			UploadDir: "./data/uploads",
			DBPath:    "./data/datasheet-rag.db",
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Upload: UploadConfig{
			MaxFileSize:       100 * 1024 * 1024,
			AllowedExtensions: []string{".pdf"},
		},
		RAG: RAGConfig{
			TopK:              5,
			Temperature:       0.1,
			MaxContextLength:  3000,
			PromptLanguage:    "ko",
			RetrievalTimeout:  30 * time.Second,
			GenerationTimeout: 120 * time.Second,
		},
		Ollama: OllamaConfig{
			Host:    "http://localhost:11434",
			Model:   "qwen2:0.5b",
			Timeout: 120 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "bge-m3",
			BaseURL:   "http://localhost:11434",
			Dimension: 1024,
			CacheSize: 10000,
			BatchSize: 50,
			Timeout:   60 * time.Second,
		},
		Search: SearchConfig{
			Mode:          "hybrid",
			Fusion:        "weighted",
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
			RRFConstant:   60,
			CacheTTL:      time.Hour,
			CacheSize:     1000,
		},
		VectorIndex: VectorIndexConfig{
			IVFThreshold: 10000,
			NProbe:       0,
			Iterations:   10,
			Seed:         42,
		},
		Workers: WorkersConfig{
			PoolSize: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "./logs/datasheet-rag.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
			Console:    true,
		},
	}
}
