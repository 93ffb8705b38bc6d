package atlas

import (
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config and cache directory derivation
	DefaultAppName       = "arxiv-atlas"
	DefaultConfigPath    = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultOutputDir     = filepath.Join(getHomeDir(), ".local", "share", DefaultAppName)
	DefaultCacheDir      = filepath.Join(DefaultOutputDir, "cache")
	DefaultDataDir       = filepath.Join(DefaultOutputDir, "data")
	DefaultEmbeddingsDir = filepath.Join(DefaultOutputDir, "embeddings")

	// DefaultDatasetRepo is the upstream partitioned dataset
	DefaultDatasetRepo = "permutans/arxiv-papers-by-subject"
	DefaultHubEndpoint = "https://huggingface.co"
)

// Progress reports coarse-grained progress of a long-running operation.
// Implementations must not block for more than a bounded, short duration.
type Progress func(current, total int, message string)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			// Last resort - use tmp directory
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
