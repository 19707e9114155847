// Package app wires the lord server components: store root, catalog,
// metrics listener and the NNTP accept loop.
package app

import (
	"fmt"
	"strconv"

	"github.com/dmaluka/lornews/pkg/banner"
	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/nntp"
	"github.com/dmaluka/lornews/pkg/telemetry"
)

// App encapsulates the server components and lifecycle.
type App struct {
	Root    string
	Cfg     *config.Config
	Port    int
	PostCmd string
	Metrics string

	srv *nntp.Server
}

// New validates the environment and loads the catalog. It does not bind
// any listener; call Run for that.
func New(port int, postCmd, metrics string) (*App, error) {
	root, err := config.Root()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if port == 0 {
		port = cfg.Server.Port
	}
	if postCmd == "" {
		postCmd = cfg.Server.PostCmd
	}
	if metrics == "" {
		metrics = cfg.Server.Metrics
	}

	cat, err := config.LoadCatalog(root)
	if err != nil {
		return nil, err
	}
	if _, err := config.CreationDate(root); err != nil {
		return nil, fmt.Errorf("install has no creation date: %w", err)
	}

	a := &App{
		Root:    root,
		Cfg:     cfg,
		Port:    port,
		PostCmd: postCmd,
		Metrics: metrics,
		srv:     nntp.NewServer(root, cat, postCmd),
	}
	return a, nil
}

// Run starts the metrics listener when configured and blocks in the NNTP
// accept loop until a fatal error.
func (a *App) Run() error {
	banner.Print(a.Port, a.Root, a.Metrics)
	if a.Metrics != "" {
		telemetry.Serve(a.Metrics)
	}
	return a.srv.ListenAndServe(":" + strconv.Itoa(a.Port))
}
