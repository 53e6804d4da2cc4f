package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"telerelay/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Hub struct {
		Path           string        `yaml:"path"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		SendQueueSize  int           `yaml:"send_queue_size"`
		MaxMessageSize int64         `yaml:"max_message_size_bytes"`
		ActuatorLabel  string        `yaml:"actuator_label"`
		CameraLabel    string        `yaml:"camera_label"`
	} `yaml:"hub"`

	MJPEG struct {
		Boundary           string        `yaml:"boundary"`
		KeepaliveInterval  time.Duration `yaml:"keepalive_interval"`
		MaxFrameBytes      int           `yaml:"max_frame_bytes"`
		StreamPollInterval time.Duration `yaml:"stream_poll_interval"`
	} `yaml:"mjpeg"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Address  string        `yaml:"address"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		PoolSize int           `yaml:"pool_size"`
		FrameKey string        `yaml:"frame_key"`
		FrameTTL time.Duration `yaml:"frame_ttl"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int     `yaml:"connections_per_minute"`
			MessagesPerSecond    float64 `yaml:"messages_per_second"`
			Burst                int     `yaml:"burst"`
			MaxConcurrent        int     `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be >= 0")
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must be >= 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Hub
	if err := validation.ValidatePath(c.Hub.Path); err != nil {
		return fmt.Errorf("hub.path: %w", err)
	}
	if c.Hub.PingInterval <= 0 {
		return fmt.Errorf("hub.ping_interval must be > 0")
	}
	if c.Hub.PongTimeout <= c.Hub.PingInterval {
		return fmt.Errorf("hub.pong_timeout must be > hub.ping_interval")
	}
	if c.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub.write_timeout must be > 0")
	}
	if c.Hub.SendQueueSize <= 0 {
		return fmt.Errorf("hub.send_queue_size must be > 0")
	}
	if c.Hub.MaxMessageSize <= 0 {
		return fmt.Errorf("hub.max_message_size_bytes must be > 0")
	}
	if err := validation.ValidateDeviceLabel(c.Hub.ActuatorLabel); err != nil {
		return fmt.Errorf("hub.actuator_label: %w", err)
	}
	if err := validation.ValidateDeviceLabel(c.Hub.CameraLabel); err != nil {
		return fmt.Errorf("hub.camera_label: %w", err)
	}
	if c.Hub.ActuatorLabel == c.Hub.CameraLabel {
		return fmt.Errorf("hub.actuator_label and hub.camera_label must differ")
	}

	// MJPEG
	if err := validation.ValidateBoundary(c.MJPEG.Boundary); err != nil {
		return fmt.Errorf("mjpeg.boundary: %w", err)
	}
	if c.MJPEG.KeepaliveInterval <= 0 {
		return fmt.Errorf("mjpeg.keepalive_interval must be > 0")
	}
	if c.MJPEG.MaxFrameBytes <= 0 {
		return fmt.Errorf("mjpeg.max_frame_bytes must be > 0")
	}
	if c.MJPEG.StreamPollInterval <= 0 {
		return fmt.Errorf("mjpeg.stream_poll_interval must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis is enabled")
		}
		if c.Redis.FrameKey == "" {
			return fmt.Errorf("redis.frame_key must not be empty when redis is enabled")
		}
		if c.Redis.FrameTTL < 0 {
			return fmt.Errorf("redis.frame_ttl must be >= 0")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	// Ingress requests stay open for the lifetime of the camera stream, so
	// the body read and response write are unbounded by default.
	cfg.Server.ReadTimeout = 0
	cfg.Server.WriteTimeout = 0
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Hub.Path = "/ws"
	cfg.Hub.PingInterval = 30 * time.Second
	cfg.Hub.PongTimeout = 60 * time.Second
	cfg.Hub.WriteTimeout = 10 * time.Second
	cfg.Hub.SendQueueSize = 256
	cfg.Hub.MaxMessageSize = 64 * 1024
	cfg.Hub.ActuatorLabel = "ESP32-DevKit"
	cfg.Hub.CameraLabel = "ESP32-CAM"

	cfg.MJPEG.Boundary = "ESP32CAM_BOUNDARY"
	cfg.MJPEG.KeepaliveInterval = 3 * time.Second
	cfg.MJPEG.MaxFrameBytes = 4 * 1024 * 1024
	cfg.MJPEG.StreamPollInterval = 50 * time.Millisecond

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "telerelay"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.FrameKey = "telerelay:frame:latest"
	cfg.Redis.FrameTTL = 30 * time.Second

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("TELERELAY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("TELERELAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if boundary := os.Getenv("TELERELAY_MJPEG_BOUNDARY"); boundary != "" {
		c.MJPEG.Boundary = boundary
	}
	if addr := os.Getenv("TELERELAY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if pw := os.Getenv("TELERELAY_REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if v := os.Getenv("TELERELAY_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("TELERELAY_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
}
