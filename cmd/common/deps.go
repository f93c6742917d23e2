// Package common holds shared wiring for the CLI commands: configuration
// and logger setup plus construction of the scan engine.
package common

import (
	"fmt"

	"github.com/jonesrussell/linkscan/internal/config"
	"github.com/jonesrussell/linkscan/internal/logger"
)

// CommandDeps holds the dependencies every command needs.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Interface
}

// NewCommandDeps loads the configuration and creates the logger.
func NewCommandDeps() (*CommandDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Development: cfg.Logger.Development,
	})

	return &CommandDeps{Config: cfg, Logger: log}, nil
}
