// Package config handles wallet configuration: network selection, node
// endpoint, data directory and engine limits, loaded from a key = value
// conf file over network defaults.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds wallet runtime configuration.
type Config struct {
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	Node   NodeConfig
	Wallet WalletConfig
	Log    LogConfig
}

// NodeConfig holds remote node settings.
type NodeConfig struct {
	URL            string `conf:"node.url"`
	TimeoutSeconds int    `conf:"node.timeout"`
}

// WalletConfig holds the engine settings.
type WalletConfig struct {
	GapLimit   int `conf:"wallet.gaplimit"`
	MaxInputs  int `conf:"wallet.maxinputs"`
	MaxOutputs int `conf:"wallet.maxoutputs"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-appropriate data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hathor-wallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "hathor-wallet")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "hathor-wallet")
	default:
		return filepath.Join(home, ".hathor-wallet")
	}
}

// KeystoreDir returns the keystore directory under the data dir.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

// DBDir returns the wallet database directory under the data dir.
func (c *Config) DBDir() string {
	return filepath.Join(c.DataDir, string(c.Network), "db")
}
