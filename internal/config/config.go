package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	HTTP        HTTPConfig        `yaml:"http"`
	Audio       AudioConfig       `yaml:"audio"`
	Session     SessionConfig     `yaml:"session"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Completion  CompletionConfig  `yaml:"completion"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains WebSocket server configuration
type ServerConfig struct {
	Port           int    `yaml:"port"`
	BindAddress    string `yaml:"bind_address"`
	Path           string `yaml:"path"`             // WebSocket upgrade path
	MaxMessageSize int64  `yaml:"max_message_size"` // bytes
	WriteTimeout   int    `yaml:"write_timeout"`    // seconds
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains the assumed PCM format for undeclared audio
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	Channels      int `yaml:"channels"`
	BitDepth      int `yaml:"bit_depth"`
	MaxChunkBytes int `yaml:"max_chunk_bytes"`
}

// SessionConfig contains session lifecycle parameters
type SessionConfig struct {
	ChunkTimeout     float64 `yaml:"chunk_timeout"`     // seconds, silence gap ending an utterance
	WatchdogInterval float64 `yaml:"watchdog_interval"` // seconds
	IdleTimeout      int     `yaml:"idle_timeout"`      // seconds, inactive session eviction
}

// RecognitionConfig contains recognition backend configuration
type RecognitionConfig struct {
	Mode           string `yaml:"mode"` // batch, stream or simulated
	Endpoint       string `yaml:"endpoint"`
	StreamEndpoint string `yaml:"stream_endpoint"`
	APIKey         string `yaml:"api_key"`
	Language       string `yaml:"language"`
	Timeout        int    `yaml:"timeout"` // seconds, batch recognition bound
	MaxConcurrent  int    `yaml:"max_concurrent"`
}

// CompletionConfig contains completion forwarding configuration
type CompletionConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	Timeout      int    `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}

	if err := c.Completion.Validate(); err != nil {
		return fmt.Errorf("completion config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if s.MaxMessageSize < 1024 {
		return fmt.Errorf("max_message_size must be at least 1024 bytes, got %d", s.MaxMessageSize)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	validRates := map[int]bool{8000: true, 16000: true, 22050: true, 44100: true, 48000: true}
	if !validRates[a.SampleRate] {
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 22050, 44100, 48000], got %d", a.SampleRate)
	}

	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16 for linear PCM, got %d", a.BitDepth)
	}

	if a.MaxChunkBytes < 1024 {
		return fmt.Errorf("max_chunk_bytes must be at least 1024, got %d", a.MaxChunkBytes)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.ChunkTimeout <= 0 {
		return fmt.Errorf("chunk_timeout must be positive, got %f", s.ChunkTimeout)
	}

	if s.WatchdogInterval <= 0 {
		return fmt.Errorf("watchdog_interval must be positive, got %f", s.WatchdogInterval)
	}

	if s.WatchdogInterval > s.ChunkTimeout {
		return fmt.Errorf("watchdog_interval (%f) must not exceed chunk_timeout (%f)",
			s.WatchdogInterval, s.ChunkTimeout)
	}

	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}

	return nil
}

// Validate validates recognition configuration
func (r *RecognitionConfig) Validate() error {
	validModes := map[string]bool{"batch": true, "stream": true, "simulated": true}
	if !validModes[r.Mode] {
		return fmt.Errorf("mode must be one of [batch, stream, simulated], got '%s'", r.Mode)
	}

	switch r.Mode {
	case "batch":
		if r.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty in batch mode")
		}
	case "stream":
		if r.StreamEndpoint == "" {
			return fmt.Errorf("stream_endpoint cannot be empty in stream mode")
		}
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	if r.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", r.MaxConcurrent)
	}

	return nil
}

// Validate validates completion configuration
func (c *CompletionConfig) Validate() error {
	if c.Enabled {
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty when completion is enabled")
		}

		if c.Timeout < 1 {
			return fmt.Errorf("timeout must be at least 1 second, got %d", c.Timeout)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetWriteTimeoutDuration returns the transport write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetChunkTimeoutDuration returns the chunk timeout as a time.Duration
func (s *SessionConfig) GetChunkTimeoutDuration() time.Duration {
	return time.Duration(s.ChunkTimeout * float64(time.Second))
}

// GetWatchdogIntervalDuration returns the watchdog interval as a time.Duration
func (s *SessionConfig) GetWatchdogIntervalDuration() time.Duration {
	return time.Duration(s.WatchdogInterval * float64(time.Second))
}

// GetIdleTimeoutDuration returns the idle eviction threshold as a time.Duration
func (s *SessionConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetTimeoutDuration returns the batch recognition bound as a time.Duration
func (r *RecognitionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetTimeoutDuration returns the completion bound as a time.Duration
func (c *CompletionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
