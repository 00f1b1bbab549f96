package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Behavior   BehaviorConfig   `yaml:"behavior"`
	Geofence   GeofenceConfig   `yaml:"geofence"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig configures the alert bus. An empty URL disables it.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// MinIOConfig configures snapshot storage. An empty endpoint disables it.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	MinFaceConfidence  float64 `yaml:"min_face_confidence"`
	DistanceThreshold  float64 `yaml:"distance_threshold"`
	ExtractorPool      int     `yaml:"extractor_pool"`
	FrameWidth         int     `yaml:"frame_width"`
	DefaultFPS         float64 `yaml:"default_fps"`
}

type BehaviorConfig struct {
	LoiteringSeconds            int           `yaml:"loitering_seconds"`
	DuplicateSuppressionSeconds int           `yaml:"duplicate_suppression_seconds"`
	UnknownAlertIntervalSeconds int           `yaml:"unknown_alert_interval_seconds"`
	RetentionMultiplier         int           `yaml:"retention_multiplier"`
	SweepInterval               time.Duration `yaml:"sweep_interval"`
	// How long a visitor stays marked inside without being seen on any camera.
	InsideRetention time.Duration `yaml:"inside_retention"`
}

func (b BehaviorConfig) LoiteringThreshold() time.Duration {
	return time.Duration(b.LoiteringSeconds) * time.Second
}

func (b BehaviorConfig) SuppressionWindow() time.Duration {
	return time.Duration(b.DuplicateSuppressionSeconds) * time.Second
}

func (b BehaviorConfig) UnknownAlertInterval() time.Duration {
	return time.Duration(b.UnknownAlertIntervalSeconds) * time.Second
}

type GeofenceConfig struct {
	BoundariesDir               string `yaml:"boundaries_dir"`
	ViolationThresholdSeconds   int    `yaml:"violation_threshold_seconds"`
	DuplicateSuppressionSeconds int    `yaml:"duplicate_suppression_seconds"`
}

func (g GeofenceConfig) ViolationThreshold() time.Duration {
	return time.Duration(g.ViolationThresholdSeconds) * time.Second
}

func (g GeofenceConfig) SuppressionWindow() time.Duration {
	return time.Duration(g.DuplicateSuppressionSeconds) * time.Second
}

// DispatcherConfig configures delivery to the downstream alert sink. An empty URL
// puts the dispatcher in log-only mode.
type DispatcherConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	QueueSize  int           `yaml:"queue_size"`
	Workers    int           `yaml:"workers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "vms-snapshots"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.MinFaceConfidence == 0 {
		cfg.Vision.MinFaceConfidence = 0.70
	}
	if cfg.Vision.DistanceThreshold == 0 {
		cfg.Vision.DistanceThreshold = 0.40
	}
	if cfg.Vision.ExtractorPool == 0 {
		cfg.Vision.ExtractorPool = 2
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}
	if cfg.Vision.DefaultFPS == 0 {
		cfg.Vision.DefaultFPS = 5
	}
	if cfg.Behavior.LoiteringSeconds == 0 {
		cfg.Behavior.LoiteringSeconds = 60
	}
	if cfg.Behavior.DuplicateSuppressionSeconds == 0 {
		cfg.Behavior.DuplicateSuppressionSeconds = 30
	}
	if cfg.Behavior.UnknownAlertIntervalSeconds == 0 {
		cfg.Behavior.UnknownAlertIntervalSeconds = 45
	}
	if cfg.Behavior.RetentionMultiplier == 0 {
		cfg.Behavior.RetentionMultiplier = 10
	}
	if cfg.Behavior.SweepInterval <= 0 {
		cfg.Behavior.SweepInterval = time.Minute
	}
	if cfg.Behavior.InsideRetention <= 0 {
		cfg.Behavior.InsideRetention = 24 * time.Hour
	}
	if cfg.Geofence.BoundariesDir == "" {
		cfg.Geofence.BoundariesDir = "boundaries"
	}
	if cfg.Geofence.ViolationThresholdSeconds == 0 {
		cfg.Geofence.ViolationThresholdSeconds = 60
	}
	if cfg.Geofence.DuplicateSuppressionSeconds == 0 {
		cfg.Geofence.DuplicateSuppressionSeconds = 30
	}
	if cfg.Dispatcher.Timeout == 0 {
		cfg.Dispatcher.Timeout = 2 * time.Second
	}
	if cfg.Dispatcher.MaxRetries == 0 {
		cfg.Dispatcher.MaxRetries = 2
	}
	if cfg.Dispatcher.RetryDelay == 0 {
		cfg.Dispatcher.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Dispatcher.QueueSize == 0 {
		cfg.Dispatcher.QueueSize = 256
	}
	if cfg.Dispatcher.Workers == 0 {
		cfg.Dispatcher.Workers = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VMS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VMS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("VMS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("VMS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("VMS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("VMS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("VMS_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("VMS_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("VMS_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("VMS_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("VMS_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("VMS_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("VMS_DISTANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.DistanceThreshold = f
		}
	}
	// BACKEND_WEBHOOK_URL is kept for deployments that predate the VMS_ prefix.
	if v := os.Getenv("BACKEND_WEBHOOK_URL"); v != "" {
		cfg.Dispatcher.URL = v
	}
	if v := os.Getenv("VMS_DISPATCH_URL"); v != "" {
		cfg.Dispatcher.URL = v
	}
	if v := os.Getenv("VMS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
