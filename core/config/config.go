// Package config loads the runtime configuration for the voice agent
// from a JSON document, with secrets pulled from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aria-vtuber/aria-core/core/audio"
	"github.com/joho/godotenv"
)

type Config struct {
	Audio    AudioConfig    `json:"audio"`
	VAD      VADConfig      `json:"vad"`
	ASR      ASRConfig      `json:"asr"`
	LLM      LLMConfig      `json:"llm"`
	TTS      TTSConfig      `json:"tts"`
	AutoChat AutoChatConfig `json:"auto_chat"`
	RAG      RAGConfig      `json:"rag"`
}

type AudioConfig struct {
	SampleRate int `json:"sample_rate"`
	BlockSize  int `json:"block_size"`
}

type VADConfig struct {
	URL string `json:"url"`
}

type ASRConfig struct {
	URL string `json:"url"`
}

type LLMConfig struct {
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
	APIKey       string `json:"api_key"`
	SystemPrompt string `json:"system_prompt"`
	MaxMessages  int    `json:"max_messages"`
}

type TTSConfig struct {
	URL      string `json:"url"`
	Language string `json:"language"`
}

type AutoChatConfig struct {
	Enabled     bool     `json:"enabled"`
	MinInterval Duration `json:"min_interval"`
	MaxInterval Duration `json:"max_interval"`
	// Prompt is injected as a user turn when the idle threshold passes.
	Prompt string `json:"prompt"`
}

type RAGConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url"`
}

// Duration accepts Go duration strings ("90s", "2m") in JSON documents.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Load reads the configuration file at path. A .env file in the working
// directory is loaded first so secrets never have to live in the config
// document; OPENAI_API_KEY overrides any api_key found in the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: audio.DefaultSampleRate,
			BlockSize:  audio.DefaultBlockSize,
		},
		LLM: LLMConfig{
			MaxMessages: 10,
		},
		TTS: TTSConfig{
			Language: "zh",
		},
		AutoChat: AutoChatConfig{
			MinInterval: Duration(60 * time.Second),
			MaxInterval: Duration(180 * time.Second),
			Prompt:      "(The user has been quiet for a while. Say something in character to keep the conversation going.)",
		},
	}
}

func (c *Config) validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("audio.block_size must be positive, got %d", c.Audio.BlockSize)
	}
	if c.AutoChat.Enabled && c.AutoChat.MaxInterval < c.AutoChat.MinInterval {
		return fmt.Errorf("auto_chat.max_interval must not be below min_interval")
	}
	if c.RAG.Enabled && c.RAG.BaseURL == "" {
		return fmt.Errorf("rag.base_url is required when rag is enabled")
	}
	return nil
}
