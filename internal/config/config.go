package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "ARMPOSE"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
	Model      ModelConfig      `yaml:"model" envconfig:"MODEL"`
	Playback   PlaybackConfig   `yaml:"playback" envconfig:"PLAYBACK"`
	Kinematics KinematicsConfig `yaml:"kinematics" envconfig:"KINEMATICS"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
	MQTT       MQTTConfig       `yaml:"mqtt" envconfig:"MQTT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT"`
	// SessionIdleTimeout evicts sessions untouched for this long; 0 keeps them forever.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" envconfig:"SESSION_IDLE_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR"`
	UploadDir string `yaml:"upload_dir" envconfig:"UPLOAD_DIR"`
	ExportDir string `yaml:"export_dir" envconfig:"EXPORT_DIR"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// ModelConfig holds the default regressor options used when a train
// request does not override them.
type ModelConfig struct {
	Epochs       int     `yaml:"epochs" envconfig:"EPOCHS"`
	BatchSize    int     `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	Activation   string  `yaml:"activation" envconfig:"ACTIVATION"`
	HiddenUnits1 int     `yaml:"hidden_units_1" envconfig:"HIDDEN_UNITS_1"`
	HiddenUnits2 int     `yaml:"hidden_units_2" envconfig:"HIDDEN_UNITS_2"`
	LearningRate float64 `yaml:"learning_rate" envconfig:"LEARNING_RATE"`
	Seed         int64   `yaml:"seed" envconfig:"SEED"`
	// Concurrency bounds the number of frames predicted in parallel.
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY"`
}

// PlaybackConfig controls the frame cursor.
type PlaybackConfig struct {
	Tick time.Duration `yaml:"tick" envconfig:"TICK"`
}

// KinematicsConfig describes the planar arm used to turn angles into joint positions.
type KinematicsConfig struct {
	ShoulderX       float64 `yaml:"shoulder_x" envconfig:"SHOULDER_X"`
	ShoulderY       float64 `yaml:"shoulder_y" envconfig:"SHOULDER_Y"`
	UpperArm        float64 `yaml:"upper_arm" envconfig:"UPPER_ARM"`
	Forearm         float64 `yaml:"forearm" envconfig:"FOREARM"`
	Hand            float64 `yaml:"hand" envconfig:"HAND"`
	TargetX         float64 `yaml:"target_x" envconfig:"TARGET_X"`
	TargetY         float64 `yaml:"target_y" envconfig:"TARGET_Y"`
	ThrowElbowBelow float64 `yaml:"throw_elbow_below" envconfig:"THROW_ELBOW_BELOW"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TracingEnabled bool    `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled bool    `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
	SampleRate     float64 `yaml:"sample_rate" envconfig:"SAMPLE_RATE"`
	PrettyPrint    bool    `yaml:"pretty_print" envconfig:"PRETTY_PRINT"`
}

// MQTTConfig configures the optional frame stream.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled" envconfig:"ENABLED"`
	Broker      string        `yaml:"broker" envconfig:"BROKER"`
	ClientID    string        `yaml:"client_id" envconfig:"CLIENT_ID"`
	TopicPrefix string        `yaml:"topic_prefix" envconfig:"TOPIC_PREFIX"`
	QoS         byte          `yaml:"qos" envconfig:"QOS"`
	Retained    bool          `yaml:"retained" envconfig:"RETAINED"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := loadFromFile(configFile, cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	// Fields carry no default tags, so only variables that are actually set
	// overwrite what the defaults and the file produced.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the keys present in a YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Server.OperationTimeout <= 0 {
		return fmt.Errorf("server operation timeout must be positive")
	}

	if c.Server.SessionIdleTimeout < 0 {
		return fmt.Errorf("session idle timeout must not be negative")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output %q", c.Logging.Output)
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	if c.Model.Epochs <= 0 {
		return fmt.Errorf("model epochs must be positive")
	}
	if c.Model.BatchSize <= 0 {
		return fmt.Errorf("model batch size must be positive")
	}
	if c.Model.HiddenUnits1 <= 0 || c.Model.HiddenUnits2 <= 0 {
		return fmt.Errorf("model hidden units must be positive")
	}
	if c.Model.LearningRate <= 0 {
		return fmt.Errorf("model learning rate must be positive")
	}
	if c.Model.Concurrency <= 0 {
		c.Model.Concurrency = 1
	}

	if c.Playback.Tick <= 0 {
		return fmt.Errorf("playback tick must be positive")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate must be within [0,1]")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			IdleTimeout:        60 * time.Second,
			MaxHeaderBytes:     1 << 20, // 1MB
			MaxUploadBytes:     32 << 20,
			ShutdownTimeout:    30 * time.Second,
			OperationTimeout:   30 * time.Minute,
			SessionIdleTimeout: 2 * time.Hour,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "console",
			FilePath:    "logs/app.log",
			Development: false,
		},
		Paths: PathsConfig{
			DataDir:   "data",
			UploadDir: "data/uploads",
			ExportDir: "data/exports",
			LogsDir:   "logs",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Model: ModelConfig{
			Epochs:       32,
			BatchSize:    12,
			Activation:   "relu",
			HiddenUnits1: 128,
			HiddenUnits2: 64,
			LearningRate: 0.01,
			Seed:         42,
			Concurrency:  8,
		},
		Playback: PlaybackConfig{
			Tick: 50 * time.Millisecond,
		},
		Kinematics: KinematicsConfig{
			ShoulderX:       150,
			ShoulderY:       200,
			UpperArm:        100,
			Forearm:         100,
			Hand:            50,
			TargetX:         500,
			TargetY:         200,
			ThrowElbowBelow: 90,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "armpose",
			Environment:    "development",
			TracingEnabled: true,
			MetricsEnabled: true,
			SampleRate:     1.0,
			PrettyPrint:    false,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			ClientID:    "armpose",
			TopicPrefix: "armpose",
			QoS:         0,
			Retained:    false,
			Timeout:     5 * time.Second,
		},
	}
}
