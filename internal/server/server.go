// Package server exposes the marking API over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/notify"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB       *gorm.DB
	Config   *config.Config
	Notifier *notify.Notifier // nil disables notifications
	Out      io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if opts.Config == nil {
		return fmt.Errorf("server: config is required")
	}

	router := Router(opts.DB, opts.Config, opts.Notifier)

	addr := fmt.Sprintf("%s:%d", opts.Config.Server.Host, opts.Config.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Scanmark API listening on %s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Router builds the gin engine with all routes registered. Split out
// from Start so tests can drive it through httptest.
func Router(gdb *gorm.DB, cfg *config.Config, notifier *notify.Notifier) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if notifier == nil {
		notifier = notify.New()
	}
	registerRoutes(router, gdb, cfg, notifier)
	return router
}
