package app

import (
	"database/sql"
	"fmt"
	"os"

	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/engine"
	"escrowline/internal/events"
	"escrowline/internal/ledger"
	"escrowline/internal/migrate"
	"escrowline/internal/notify"
	"escrowline/internal/repo"
	"escrowline/internal/store"
)

// Context bundles the wired application: workspace database, config, and
// the orchestrating engine. Built once per CLI invocation or server start.
type Context struct {
	DB     *sql.DB
	Config *config.Config
	Repo   repo.Repo
	Store  store.Store
	Engine *engine.Engine
}

// Build opens the workspace database, runs migrations, loads config
// (environment overrides applied), and wires the engine.
func Build(workspace string) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	applyEnv(cfg)

	r := repo.Repo{DB: conn}
	st := store.NewDB(r)
	led := ledger.New(cfg.Ledger.BaseURL, cfg.Ledger.APIKey)
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.BaseURL != "" {
		notifier = notify.NewHTTP(cfg.Notify.BaseURL, cfg.Notify.APIKey)
	}
	eng := engine.New(led, notifier, st, events.Writer{Repo: &r}, cfg)
	return &Context{DB: conn, Config: cfg, Repo: r, Store: st, Engine: eng}, nil
}

// Close releases the workspace database.
func (c *Context) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// applyEnv layers process environment over the file config for the values
// that are awkward to keep on disk.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("ESCROWLINE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("ESCROWLINE_LEDGER_API_KEY"); v != "" {
		cfg.Ledger.APIKey = v
	}
	if v := os.Getenv("ESCROWLINE_ACTOR"); v != "" {
		cfg.Actor.Principal = v
	}
}
