// Package config manages the repository configuration and the .snstore
// directory structure. It handles loading, saving, and initializing the
// repository configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	StoreDir     = ".snstore"
	ConfigFile   = "config"
	DatabaseFile = "repo.db"
	BlobsDir     = "blobs"
	BlobsFile    = "blobs.db"
)

// Blob store kinds.
const (
	BlobStoreFS   = "fs"
	BlobStoreBolt = "bolt"
)

// Config represents the repository configuration.
type Config struct {
	BlobStore           string `toml:"blob_store"`            // fs or bolt
	IndexURL            string `toml:"index_url"`             // Weaviate endpoint, empty disables push
	WorkerCount         int    `toml:"worker_count"`          // parallel indexing workers
	LeaseTimeoutSeconds int    `toml:"lease_timeout_seconds"` // activity lease duration
	path                string // path to the .snstore directory
}

// FindRoot finds the .snstore directory by walking up from the current
// directory.
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		storePath := filepath.Join(dir, StoreDir)
		if info, err := os.Stat(storePath); err == nil && info.IsDir() {
			return storePath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a snstore repository (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the .snstore directory.
func Load() (*Config, error) {
	storePath, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(storePath)
}

// LoadFrom loads the configuration from an explicit .snstore directory.
func LoadFrom(storePath string) (*Config, error) {
	configPath := filepath.Join(storePath, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = storePath
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BlobStore == "" {
		c.BlobStore = BlobStoreFS
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.LeaseTimeoutSeconds <= 0 {
		c.LeaseTimeoutSeconds = 60
	}
}

// Save saves the configuration to disk.
func (c *Config) Save() error {
	configPath := filepath.Join(c.path, ConfigFile)
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// StorePath returns the path to the .snstore directory.
func (c *Config) StorePath() string {
	return c.path
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// BlobsPath returns the blob store location for the configured kind: a
// directory for fs, a bbolt file for bolt.
func (c *Config) BlobsPath() string {
	if c.BlobStore == BlobStoreBolt {
		return filepath.Join(c.path, BlobsFile)
	}
	return filepath.Join(c.path, BlobsDir)
}

// LeaseTimeout returns the activity lease duration.
func (c *Config) LeaseTimeout() time.Duration {
	return time.Duration(c.LeaseTimeoutSeconds) * time.Second
}

// Initialize creates a new .snstore directory with initial configuration.
func Initialize(blobStore, indexURL string) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return InitializeAt(cwd, blobStore, indexURL)
}

// InitializeAt creates a new .snstore directory under dir.
func InitializeAt(dir, blobStore, indexURL string) (*Config, error) {
	switch blobStore {
	case "", BlobStoreFS, BlobStoreBolt:
	default:
		return nil, fmt.Errorf("unknown blob store kind %q", blobStore)
	}

	storePath := filepath.Join(dir, StoreDir)

	// Check if already initialized
	if _, err := os.Stat(storePath); err == nil {
		return nil, fmt.Errorf("snstore repository already exists")
	}

	if err := os.MkdirAll(storePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .snstore directory: %w", err)
	}

	cfg := &Config{
		BlobStore: blobStore,
		IndexURL:  indexURL,
		path:      storePath,
	}
	cfg.applyDefaults()

	if cfg.BlobStore == BlobStoreFS {
		if err := os.MkdirAll(cfg.BlobsPath(), 0755); err != nil {
			os.RemoveAll(storePath)
			return nil, fmt.Errorf("failed to create blobs directory: %w", err)
		}
	}

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(storePath)
		return nil, err
	}

	return cfg, nil
}
