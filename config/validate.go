package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var knownModules = map[string]struct{}{
	"vault":   {},
	"rewards": {},
}

// ValidateConfig rejects configurations the daemon cannot safely run with.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must be set")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if cfg.MaxBatchSize < 0 {
		return fmt.Errorf("config: MaxBatchSize cannot be negative")
	}
	if cfg.AccrualIntervalSecs < 0 {
		return fmt.Errorf("config: AccrualIntervalSecs cannot be negative")
	}
	if addr := strings.TrimSpace(cfg.AuthorityAddress); addr != "" && !common.IsHexAddress(addr) {
		return fmt.Errorf("config: AuthorityAddress %q is not a hex address", addr)
	}
	for _, module := range cfg.PausedModules {
		if _, ok := knownModules[module]; !ok {
			return fmt.Errorf("config: unknown module %q in PausedModules", module)
		}
	}
	return nil
}

// Authority parses the configured authority address, returning the zero
// address when unset.
func (c *Config) Authority() common.Address {
	addr := strings.TrimSpace(c.AuthorityAddress)
	if addr == "" {
		return common.Address{}
	}
	return common.HexToAddress(addr)
}
