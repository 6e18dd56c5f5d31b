package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"uniquify-worker/internal/config"
	"uniquify-worker/internal/logging"
	"uniquify-worker/internal/orchestrator"
	"uniquify-worker/internal/store"
	"uniquify-worker/pkg/models"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	once      sync.Once
	config    *config.Config
	logger    zerolog.Logger
	configErr error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

// ensureConfig loads configuration and sets up logging once per process.
func (c *commandContext) ensureConfig() (*config.Config, zerolog.Logger, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.Log.Level = *c.logLevelFlag
		}
		c.config = cfg
		c.logger = logging.Setup(cfg.Log, os.Stderr)
	})
	return c.config, c.logger, c.configErr
}

type lister interface {
	List(ctx context.Context, limit int) ([]models.BatchJob, error)
}

// openStore returns the SQLite store when a state DB is configured and an
// in-memory store otherwise. The closer is always safe to call.
func openStore(cfg *config.Config) (orchestrator.JobStore, lister, func(), error) {
	if cfg.StateDB == "" {
		s := store.NewMemoryStore()
		return s, s, func() {}, nil
	}
	s, err := store.OpenSQLite(cfg.StateDB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state db: %w", err)
	}
	return s, s, func() { _ = s.Close() }, nil
}
