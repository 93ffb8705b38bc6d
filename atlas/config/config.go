package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/permutans/arxiv-atlas/atlas"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Hub        HubConfig        `mapstructure:"hub"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Estimator  EstimatorConfig  `mapstructure:"estimator"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Projection ProjectionConfig `mapstructure:"projection"`
}

// HubConfig stores remote dataset repository settings.
type HubConfig struct {
	RepoID         string `mapstructure:"repoId"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// CacheConfig stores the persisted cache layout roots and refresh policy.
type CacheConfig struct {
	DataDir       string `mapstructure:"dataDir"`
	CacheDir      string `mapstructure:"cacheDir"`
	EmbeddingsDir string `mapstructure:"embeddingsDir"`
	// RefreshCurrentMonth re-fetches the current calendar month on every
	// request. The upstream dataset for the current month is assumed to still
	// be receiving new records.
	RefreshCurrentMonth bool `mapstructure:"refreshCurrentMonth"`
}

// EstimatorConfig stores the calibrated constants of the numeric model.
// These are empirical, derived from observed ratios for this dataset.
type EstimatorConfig struct {
	BytesPerPaper      int64   `mapstructure:"bytesPerPaper"`
	GPUPapersPerSecond float64 `mapstructure:"gpuPapersPerSecond"`
	CPUPapersPerSecond float64 `mapstructure:"cpuPapersPerSecond"`
	ProjectionRate     float64 `mapstructure:"projectionRate"`
	ProjectionEpsilon  float64 `mapstructure:"projectionEpsilon"`
}

// EmbeddingConfig stores embedding collaborator settings.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	ModelID    string `mapstructure:"modelId"`
	Dims       int    `mapstructure:"dims"`
	BatchSize  int    `mapstructure:"batchSize"`
	TextBudget int    `mapstructure:"textBudget"`
}

// ProjectionConfig stores projection collaborator hyperparameters.
type ProjectionConfig struct {
	Neighbors  int     `mapstructure:"neighbors"`
	MinDist    float64 `mapstructure:"minDist"`
	Seed       int64   `mapstructure:"seed"`
	Components int     `mapstructure:"components"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("hub.repoId", internal.DefaultDatasetRepo)
	viper.SetDefault("hub.endpoint", internal.DefaultHubEndpoint)
	viper.SetDefault("hub.timeoutSeconds", 60)

	viper.SetDefault("cache.dataDir", internal.DefaultDataDir)
	viper.SetDefault("cache.cacheDir", internal.DefaultCacheDir)
	viper.SetDefault("cache.embeddingsDir", internal.DefaultEmbeddingsDir)
	viper.SetDefault("cache.refreshCurrentMonth", true)

	// Calibration anchor: 17342 papers embed in ~26s on the GPU profile and
	// project in ~22s. See the estimate package for the model.
	viper.SetDefault("estimator.bytesPerPaper", 1000)
	viper.SetDefault("estimator.gpuPapersPerSecond", 667.0)
	viper.SetDefault("estimator.cpuPapersPerSecond", 55.0)
	viper.SetDefault("estimator.projectionRate", 857.0)
	viper.SetDefault("estimator.projectionEpsilon", 5e-6)

	viper.SetDefault("embedding.provider", "hash")
	viper.SetDefault("embedding.modelId", "snowflake-arctic-embed-xs")
	viper.SetDefault("embedding.dims", 384)
	viper.SetDefault("embedding.batchSize", 100)
	viper.SetDefault("embedding.textBudget", 512)

	viper.SetDefault("projection.neighbors", 15)
	viper.SetDefault("projection.minDist", 0.1)
	viper.SetDefault("projection.seed", 42)
	viper.SetDefault("projection.components", 2)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. hub.repoId becomes HUB_REPOID

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used. This is not an
			// error for the application to halt on.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
