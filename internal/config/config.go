package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server         ServerConfig         `toml:"server"`          // HTTP server settings
	Logging        LoggingConfig        `toml:"logging"`         // Application logging settings
	Audio          AudioConfig          `toml:"audio"`           // Audio capture and chunking settings
	Recognition    RecognitionConfig    `toml:"recognition"`     // Speech recognition model settings
	Storage        StorageConfig        `toml:"storage"`         // Data persistence settings
	PostProcessing PostProcessingConfig `toml:"post_processing"` // Transcript summarization settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on (useful for multiple interfaces)
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory to serve static files from (e.g., "www")
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// AudioConfig contains audio capture and chunking settings
type AudioConfig struct {
	FFmpegPath       string         `toml:"ffmpeg_path"`        // Path to the ffmpeg binary (default "ffmpeg", resolved via PATH)
	CaptureFormat    string         `toml:"capture_format"`     // ffmpeg input format for live capture (e.g., "alsa", "pulse", "avfoundation", "dshow")
	SampleRate       int            `toml:"sample_rate"`        // Capture sample rate in Hz
	Channels         int            `toml:"channels"`           // Capture channel count
	ChunkSeconds     int            `toml:"chunk_seconds"`      // Live chunk duration in seconds
	FileSliceSeconds int            `toml:"file_slice_seconds"` // Slice duration for file jobs in seconds
	Devices          []DeviceConfig `toml:"devices"`            // Capture devices exposed to clients
}

// DeviceConfig describes one selectable capture device
type DeviceConfig struct {
	ID    string `toml:"id"`    // Stable identifier used in API requests
	Name  string `toml:"name"`  // Human-readable device name
	Input string `toml:"input"` // ffmpeg input spec (e.g., "hw:0" for alsa, ":0" for avfoundation)
}

// RecognitionConfig contains speech recognition model settings
type RecognitionConfig struct {
	ModelPath           string   `toml:"model_path"`             // Path to the whisper GGML model file
	Threads             int      `toml:"threads"`                // Worker threads for recognition (0 = runtime default)
	Languages           []string `toml:"languages"`              // Languages offered to clients (ISO 639-1 codes)
	DefaultLanguage     string   `toml:"default_language"`       // Language used when a request does not specify one
	OverlapTrimMinChars int      `toml:"overlap_trim_min_chars"` // Minimum text overlap worth trimming between adjacent segments
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type           string `toml:"type"`             // Storage backend type (currently only "sqlite" is supported)
	SQLiteBasePath string `toml:"sqlite_base_path"` // Base path for SQLite database files (actual filename will be generated as callscribe-YYYY-MM-DD.db)
}

// PostProcessingConfig contains transcript summarization settings
type PostProcessingConfig struct {
	Enabled         bool   `toml:"enabled"`          // Enable background summarization of saved transcripts
	GeminiAPIKey    string `toml:"gemini_api_key"`   // Google Gemini API key
	Model           string `toml:"model"`            // Model name (e.g., "gemini-2.0-flash")
	IntervalSeconds int    `toml:"interval_seconds"` // How often to look for unsummarized transcripts
	BatchSize       int    `toml:"batch_size"`       // Maximum transcripts summarized per pass
	TimeoutSeconds  int    `toml:"timeout_seconds"`  // Per-request timeout for the model call
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	portsSeen := make(map[int]bool)
	portsSeen[c.Server.Port] = true
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateRecognition(); err != nil {
		return err
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLiteBasePath == "" {
		c.Storage.SQLiteBasePath = "data"
	}

	if c.PostProcessing.Enabled {
		if c.PostProcessing.GeminiAPIKey == "" {
			return fmt.Errorf("post_processing is enabled but gemini_api_key is empty")
		}
		if c.PostProcessing.Model == "" {
			c.PostProcessing.Model = "gemini-2.0-flash"
		}
	}

	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.SampleRate < 8000 {
		return fmt.Errorf("invalid sample rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 2
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("invalid channel count: %d (must be 1 or 2)", c.Audio.Channels)
	}
	if c.Audio.ChunkSeconds == 0 {
		c.Audio.ChunkSeconds = 5
	}
	if c.Audio.ChunkSeconds < 1 {
		return fmt.Errorf("invalid chunk_seconds: %d", c.Audio.ChunkSeconds)
	}
	if c.Audio.FileSliceSeconds == 0 {
		c.Audio.FileSliceSeconds = 30
	}
	if c.Audio.FileSliceSeconds < 1 {
		return fmt.Errorf("invalid file_slice_seconds: %d", c.Audio.FileSliceSeconds)
	}

	idsSeen := make(map[string]bool)
	for _, d := range c.Audio.Devices {
		if d.ID == "" {
			return fmt.Errorf("audio device with empty id")
		}
		if idsSeen[d.ID] {
			return fmt.Errorf("duplicate audio device id: %s", d.ID)
		}
		idsSeen[d.ID] = true
		if d.Input == "" {
			return fmt.Errorf("audio device %s has no input spec", d.ID)
		}
	}
	return nil
}

func (c *Config) validateRecognition() error {
	if c.Recognition.ModelPath == "" {
		return fmt.Errorf("recognition model_path is required")
	}
	if c.Recognition.Threads < 0 {
		return fmt.Errorf("invalid recognition threads: %d", c.Recognition.Threads)
	}
	if len(c.Recognition.Languages) == 0 {
		c.Recognition.Languages = []string{"en", "uk"}
	}
	if c.Recognition.DefaultLanguage == "" {
		c.Recognition.DefaultLanguage = c.Recognition.Languages[0]
	}
	found := false
	for _, lang := range c.Recognition.Languages {
		if lang == c.Recognition.DefaultLanguage {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default_language %q is not in the configured languages", c.Recognition.DefaultLanguage)
	}
	if c.Recognition.OverlapTrimMinChars == 0 {
		c.Recognition.OverlapTrimMinChars = 4
	}
	return nil
}
