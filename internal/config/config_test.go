package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validConfig returns a configuration that passes validation; tests
// mutate single fields to probe individual rules
func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			BindAddress:    "0.0.0.0",
			Path:           "/ws",
			MaxMessageSize: 1 << 20,
			WriteTimeout:   10,
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			MaxChunkBytes: 1 << 20,
		},
		Session: SessionConfig{
			ChunkTimeout:     1.0,
			WatchdogInterval: 0.25,
			IdleTimeout:      60,
		},
		Recognition: RecognitionConfig{
			Mode:          "batch",
			Endpoint:      "https://api.example.com/recognize",
			APIKey:        "test-key",
			Language:      "en",
			Timeout:       10,
			MaxConcurrent: 10,
		},
		Completion: CompletionConfig{
			Enabled:  true,
			Endpoint: "https://api.example.com/v1/chat/completions",
			APIKey:   "test-key",
			Model:    "gpt-4o-mini",
			Timeout:  30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "empty websocket path",
			mutate:      func(c *Config) { c.Server.Path = "" },
			expectError: true,
			errorMsg:    "path cannot be empty",
		},
		{
			name:        "invalid sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 12345 },
			expectError: true,
			errorMsg:    "sample_rate must be one of",
		},
		{
			name:        "invalid bit depth",
			mutate:      func(c *Config) { c.Audio.BitDepth = 24 },
			expectError: true,
			errorMsg:    "bit_depth must be 16",
		},
		{
			name:        "watchdog slower than chunk timeout",
			mutate:      func(c *Config) { c.Session.WatchdogInterval = 2.0 },
			expectError: true,
			errorMsg:    "watchdog_interval",
		},
		{
			name:        "unknown recognition mode",
			mutate:      func(c *Config) { c.Recognition.Mode = "hybrid" },
			expectError: true,
			errorMsg:    "mode must be one of",
		},
		{
			name: "stream mode requires stream endpoint",
			mutate: func(c *Config) {
				c.Recognition.Mode = "stream"
				c.Recognition.StreamEndpoint = ""
			},
			expectError: true,
			errorMsg:    "stream_endpoint cannot be empty",
		},
		{
			name: "simulated mode needs no endpoint",
			mutate: func(c *Config) {
				c.Recognition.Mode = "simulated"
				c.Recognition.Endpoint = ""
			},
			expectError: false,
		},
		{
			name: "completion endpoint required when enabled",
			mutate: func(c *Config) {
				c.Completion.Endpoint = ""
			},
			expectError: true,
			errorMsg:    "endpoint cannot be empty when completion is enabled",
		},
		{
			name: "disabled completion skips validation",
			mutate: func(c *Config) {
				c.Completion = CompletionConfig{Enabled: false}
			},
			expectError: false,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
server:
  port: 8080
  bind_address: "0.0.0.0"
  path: "/ws"
  max_message_size: 1048576
  write_timeout: 10
http:
  port: 9090
  address: "0.0.0.0"
  enabled: true
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  max_chunk_bytes: 1048576
session:
  chunk_timeout: 1.0
  watchdog_interval: 0.25
  idle_timeout: 60
recognition:
  mode: "batch"
  endpoint: "https://api.example.com/recognize"
  api_key: "test-key"
  language: "en"
  timeout: 10
  max_concurrent: 10
completion:
  enabled: false
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  port: 8080
  max_message_size: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
server:
  port: 8080
  # missing bind_address
`,
			expectError: true,
			errorMsg:    "bind_address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	session := SessionConfig{
		ChunkTimeout:     1.0,
		WatchdogInterval: 0.25,
		IdleTimeout:      60,
	}

	if session.GetChunkTimeoutDuration() != time.Second {
		t.Errorf("Expected 1 second, got %v", session.GetChunkTimeoutDuration())
	}

	if session.GetWatchdogIntervalDuration() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", session.GetWatchdogIntervalDuration())
	}

	if session.GetIdleTimeoutDuration() != 60*time.Second {
		t.Errorf("Expected 60 seconds, got %v", session.GetIdleTimeoutDuration())
	}

	server := ServerConfig{WriteTimeout: 10}
	if server.GetWriteTimeoutDuration() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", server.GetWriteTimeoutDuration())
	}

	recognition := RecognitionConfig{Timeout: 10}
	if recognition.GetTimeoutDuration() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", recognition.GetTimeoutDuration())
	}

	completion := CompletionConfig{Timeout: 30}
	if completion.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", completion.GetTimeoutDuration())
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > len(substr) && findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
