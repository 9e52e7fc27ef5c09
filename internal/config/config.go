package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          LogConfig        `yaml:"log"`
	Database     DatabaseConfig   `yaml:"database"`
	Redis        RedisConfig      `yaml:"redis"`
	EmbedLLM     LLMConfig        `yaml:"embed_llm"`
	InferenceLLM LLMConfig        `yaml:"inference_llm"`
	RAG          RAGConfig        `yaml:"rag"`
	Transcript   TranscriptConfig `yaml:"transcript"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	// Driver is "pgdriver" (default) or "pq".
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	GuardTTL Duration `yaml:"guard_ttl"`
}

type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "ollama".
	Provider   string            `yaml:"provider"`
	BaseURL    string            `yaml:"base_url"`
	Key        string            `yaml:"key"`
	Model      string            `yaml:"model"`
	Dimensions int               `yaml:"dimensions"`
	BatchSize  int               `yaml:"batch_size"`
	Aliases    map[string]string `yaml:"aliases"`
}

type RAGConfig struct {
	// VectorStore is "chromem" (local) or "postgres".
	VectorStore       string   `yaml:"vector_store"`
	ChromemPath       string   `yaml:"chromem_path"`
	ChromemInMemory   bool     `yaml:"chromem_in_memory"`
	Compress          bool     `yaml:"compress"`
	MaxChunkTokens    int      `yaml:"max_chunk_tokens"`
	TopK              int      `yaml:"top_k"`
	PreviewChars      int      `yaml:"preview_chars"`
	GenerationTimeout Duration `yaml:"generation_timeout"`
}

type TranscriptConfig struct {
	PrimaryLanguage  string   `yaml:"primary_language"`
	FallbackLanguage string   `yaml:"fallback_language"`
	HTTPTimeout      Duration `yaml:"http_timeout"`
	MaxRetries       int      `yaml:"max_retries"`
	UserAgent        string   `yaml:"user_agent"`
	BaseURL          string   `yaml:"base_url"`
}

// Duration decodes YAML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LoadConfig reads the YAML file at path, expanding ${ENV} references first.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
