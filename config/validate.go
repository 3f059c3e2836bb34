package config

import (
	"fmt"
	"net/url"
)

// Validate checks wallet config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.Node.URL == "" {
		return fmt.Errorf("node.url must be set")
	}
	u, err := url.Parse(cfg.Node.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("node.url %q is not a valid URL", cfg.Node.URL)
	}
	if cfg.Node.TimeoutSeconds < 0 {
		return fmt.Errorf("node.timeout must not be negative")
	}
	if cfg.Wallet.GapLimit <= 0 {
		return fmt.Errorf("wallet.gaplimit must be positive")
	}
	if cfg.Wallet.MaxInputs <= 0 || cfg.Wallet.MaxInputs > 255 {
		return fmt.Errorf("wallet.maxinputs must be in range [1, 255]")
	}
	if cfg.Wallet.MaxOutputs <= 0 || cfg.Wallet.MaxOutputs > 255 {
		return fmt.Errorf("wallet.maxoutputs must be in range [1, 255]")
	}
	return nil
}
