package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/elastic-io/ferry/internal/api"
	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/options"
	"github.com/elastic-io/ferry/internal/service"
	"github.com/elastic-io/ferry/internal/store"
)

type App struct {
	opts    *options.Options
	dbname  string
	store   store.SessionStore
	backend backend.Backend
	cleanup *service.CleanupService
	server  *api.Server
}

func New(opts *options.Options) (*App, error) {
	app := &App{opts: opts}
	app.dbname = "sessions.db"

	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(opts.DataDir, app.dbname)

	var err error
	app.store, err = store.NewSessionStore(opts.Engine, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	opts.Config.Store = app.store

	c := opts.Config
	name := "local"
	if c.NativeMultipart() {
		name = "s3"
	}
	app.backend, err = backend.New(name, backend.Options{
		Expiry:        c.PresignExpiry,
		Endpoint:      c.S3Endpoint,
		Region:        c.S3Region,
		Bucket:        c.S3Bucket,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		Dir:           c.ObjectDir,
		SigningSecret: c.SigningSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", name, err)
	}
	opts.Config.Backend = app.backend

	app.cleanup = service.NewCleanupService(app.store, app.backend, c.Retention, c.SweepInterval)
	return app, opts.Config.Validate()
}

func (a *App) Run() error {
	a.cleanup.Start()

	server := api.New(a.opts.Config)
	if err := server.Init(); err != nil {
		return err
	}
	a.server = server
	return server.Serve()
}

func (a *App) Stop() error {
	if a.cleanup != nil {
		a.cleanup.Stop()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.server != nil {
		a.server.Done()
	}
	return nil
}
