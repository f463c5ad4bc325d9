package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/subauto/subauto/internal/config"
	"github.com/subauto/subauto/internal/history"
	"github.com/subauto/subauto/internal/service"
	"github.com/subauto/subauto/internal/session"
	"github.com/subauto/subauto/pkg/log"
)

// commandContext lazily loads configuration and shares it across commands.
type commandContext struct {
	cfg *config.Config
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	// A missing .env file is fine; the environment may carry everything.
	_ = godotenv.Load()
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// newService opens the history database and builds the job service. The
// returned cleanup closes the database.
func (c *commandContext) newService() (*service.Service, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := history.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, nil, err
	}
	return service.New(cfg, store), func() { _ = store.Close() }, nil
}

func (c *commandContext) historyStore() (*history.SQLiteStore, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := history.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func (c *commandContext) sessionStore() (*session.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return session.NewStore(cfg.StateDir()), nil
}
