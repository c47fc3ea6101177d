package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Raster       RasterConfig
	Detection    DetectionConfig
	Segmentation SegmentationConfig
	Storage      StorageConfig
	Worker       WorkerConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RasterConfig - подключение к растровому вычислительному бэкенду.
// Backend "local" использует встроенный детерминированный источник
// (демо-режим без внешних учётных данных), "remote" - HTTP API.
type RasterConfig struct {
	Backend        string
	BaseURL        string
	APIKey         string
	RequestTimeout int
	MaxRetries     int
	RetryBackoff   time.Duration
}

// DetectionConfig - параметры конвейера обнаружения незаконной добычи
type DetectionConfig struct {
	OpticalCollection    string
	RadarCollection      string
	ElevationImage       string
	MaxCloudPercent      float64
	OpticalThreshold     float64
	RadarThreshold       float64
	RadarTextureRadiusPx int
	RimDilationM         float64
	MinDepthM            float64
	SearchBufferM        float64
	FineScaleM           float64
	CoarseScaleM         float64
	TruckCapacityM3      float64
}

type SegmentationConfig struct {
	WeightsPath string
	InputSize   int
}

type StorageConfig struct {
	StaticDir    string
	HistoryTTL   time.Duration
	HistoryLimit int
}

type WorkerConfig struct {
	Enabled           bool
	ConsumerGroup     string
	StreamReadTimeout time.Duration
	MaxBatchSize      int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// .env опционален: в демо-режиме всё работает на значениях по умолчанию
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("API_HOST"),
			Port: viper.GetInt("API_PORT"),
			Env:  viper.GetString("API_ENV"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			DBName:          viper.GetString("DB_NAME"),
			SSLMode:         viper.GetString("DB_SSLMODE"),
			MaxConns:        viper.GetInt("DB_MAX_CONNS"),
			MaxIdleConns:    viper.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(viper.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
			ConnMaxIdleTime: time.Duration(viper.GetInt("DB_CONN_MAX_IDLE_TIME")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetInt("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Raster: RasterConfig{
			Backend:        viper.GetString("RASTER_BACKEND"),
			BaseURL:        viper.GetString("RASTER_API_URL"),
			APIKey:         viper.GetString("RASTER_API_KEY"),
			RequestTimeout: viper.GetInt("RASTER_REQUEST_TIMEOUT"),
			MaxRetries:     viper.GetInt("RASTER_MAX_RETRIES"),
			RetryBackoff:   time.Duration(viper.GetInt("RASTER_RETRY_BACKOFF_MS")) * time.Millisecond,
		},
		Detection: DetectionConfig{
			OpticalCollection:    viper.GetString("DETECTION_OPTICAL_COLLECTION"),
			RadarCollection:      viper.GetString("DETECTION_RADAR_COLLECTION"),
			ElevationImage:       viper.GetString("DETECTION_ELEVATION_IMAGE"),
			MaxCloudPercent:      viper.GetFloat64("DETECTION_MAX_CLOUD_PERCENT"),
			OpticalThreshold:     viper.GetFloat64("DETECTION_OPTICAL_THRESHOLD"),
			RadarThreshold:       viper.GetFloat64("DETECTION_RADAR_THRESHOLD"),
			RadarTextureRadiusPx: viper.GetInt("DETECTION_RADAR_TEXTURE_RADIUS_PX"),
			RimDilationM:         viper.GetFloat64("DETECTION_RIM_DILATION_M"),
			MinDepthM:            viper.GetFloat64("DETECTION_MIN_DEPTH_M"),
			SearchBufferM:        viper.GetFloat64("DETECTION_SEARCH_BUFFER_M"),
			FineScaleM:           viper.GetFloat64("DETECTION_FINE_SCALE_M"),
			CoarseScaleM:         viper.GetFloat64("DETECTION_COARSE_SCALE_M"),
			TruckCapacityM3:      viper.GetFloat64("DETECTION_TRUCK_CAPACITY_M3"),
		},
		Segmentation: SegmentationConfig{
			WeightsPath: viper.GetString("SEGMENTATION_WEIGHTS_PATH"),
			InputSize:   viper.GetInt("SEGMENTATION_INPUT_SIZE"),
		},
		Storage: StorageConfig{
			StaticDir:    viper.GetString("STATIC_DIR"),
			HistoryTTL:   time.Duration(viper.GetInt("HISTORY_CACHE_TTL")) * time.Second,
			HistoryLimit: viper.GetInt("HISTORY_LIMIT"),
		},
		Worker: WorkerConfig{
			Enabled:           viper.GetBool("WORKER_ENABLED"),
			ConsumerGroup:     viper.GetString("WORKER_CONSUMER_GROUP"),
			StreamReadTimeout: time.Duration(viper.GetInt("WORKER_STREAM_READ_TIMEOUT")) * time.Millisecond,
			MaxBatchSize:      viper.GetInt("WORKER_MAX_BATCH_SIZE"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
	}

	// Set default values if not provided
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300 * time.Second
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 60 * time.Second
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Raster.Backend == "" {
		cfg.Raster.Backend = "local"
	}
	if cfg.Raster.RequestTimeout == 0 {
		cfg.Raster.RequestTimeout = 60
	}
	if cfg.Raster.MaxRetries == 0 {
		cfg.Raster.MaxRetries = 3
	}
	if cfg.Raster.RetryBackoff == 0 {
		cfg.Raster.RetryBackoff = 500 * time.Millisecond
	}
	applyDetectionDefaults(&cfg.Detection)
	if cfg.Segmentation.WeightsPath == "" {
		cfg.Segmentation.WeightsPath = "mineguard_weights.gob"
	}
	if cfg.Segmentation.InputSize == 0 {
		cfg.Segmentation.InputSize = 512
	}
	if cfg.Storage.StaticDir == "" {
		cfg.Storage.StaticDir = "./static"
	}
	if cfg.Storage.HistoryTTL == 0 {
		cfg.Storage.HistoryTTL = 60 * time.Second
	}
	if cfg.Storage.HistoryLimit == 0 {
		cfg.Storage.HistoryLimit = 50
	}
	if cfg.Worker.ConsumerGroup == "" {
		cfg.Worker.ConsumerGroup = "analysis-workers"
	}
	if cfg.Worker.StreamReadTimeout == 0 {
		cfg.Worker.StreamReadTimeout = 5000 * time.Millisecond
	}
	if cfg.Worker.MaxBatchSize == 0 {
		cfg.Worker.MaxBatchSize = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Raster.Backend == "remote" && cfg.Raster.BaseURL == "" {
		return nil, fmt.Errorf("RASTER_API_URL is required when RASTER_BACKEND=remote")
	}

	return cfg, nil
}

func applyDetectionDefaults(d *DetectionConfig) {
	if d.OpticalCollection == "" {
		d.OpticalCollection = "COPERNICUS/S2_SR_HARMONIZED"
	}
	if d.RadarCollection == "" {
		d.RadarCollection = "COPERNICUS/S1_GRD"
	}
	if d.ElevationImage == "" {
		d.ElevationImage = "USGS/SRTMGL1_003"
	}
	if d.MaxCloudPercent == 0 {
		d.MaxCloudPercent = 20
	}
	if d.OpticalThreshold == 0 {
		d.OpticalThreshold = 0.07
	}
	if d.RadarThreshold == 0 {
		d.RadarThreshold = 0.5
	}
	if d.RadarTextureRadiusPx == 0 {
		d.RadarTextureRadiusPx = 3
	}
	if d.RimDilationM == 0 {
		d.RimDilationM = 60
	}
	if d.MinDepthM == 0 {
		d.MinDepthM = 2.0
	}
	if d.SearchBufferM == 0 {
		d.SearchBufferM = 3000
	}
	if d.FineScaleM == 0 {
		d.FineScaleM = 10
	}
	if d.CoarseScaleM == 0 {
		d.CoarseScaleM = 30
	}
	if d.TruckCapacityM3 == 0 {
		d.TruckCapacityM3 = 15
	}
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
