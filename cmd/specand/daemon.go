package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/dougsko/specand/pkg/client"
	"github.com/dougsko/specand/pkg/config"
	"github.com/dougsko/specand/pkg/engine"
	"github.com/dougsko/specand/pkg/logging"
)

// Daemon runs the core engine and the HTTP front end that talks to it over
// the unix socket
type Daemon struct {
	config *config.Config

	coreEngine   *engine.CoreEngine
	socketClient *client.SocketClient
	webServer    *http.Server

	socketPath string
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg *config.Config) *Daemon {
	d := &Daemon{
		config:       cfg,
		socketPath:   cfg.API.UnixSocket,
		socketClient: client.NewSocketClient(cfg.API.UnixSocket),
		coreEngine:   engine.NewCoreEngine(cfg, cfg.API.UnixSocket),
	}

	d.webServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Web.BindAddress, cfg.Web.Port),
		Handler: d.router(),
	}
	return d
}

// Run starts the engine and web server and blocks until ctx is cancelled or
// either of them fails
func (d *Daemon) Run(ctx context.Context) error {
	logging.Info("daemon", "Starting specand daemon...")

	if err := d.coreEngine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start core engine: %w", err)
	}

	if !d.socketClient.IsConnected() {
		d.coreEngine.Stop()
		return fmt.Errorf("failed to connect to core engine socket %s", d.socketPath)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Infof("daemon", "Starting web server on %s", d.webServer.Addr)
		if err := d.webServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logging.Info("daemon", "Stopping daemon...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(shutdownCtx); err != nil {
			logging.Warnf("daemon", "Web server shutdown error: %v", err)
		}
		if err := d.coreEngine.Stop(); err != nil {
			return fmt.Errorf("core engine shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// router builds the HTTP API
func (d *Daemon) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/sessions", d.handleGetSessions)
		api.GET("/journal", d.handleGetJournal)
		api.GET("/traces", d.handleGetTraces)
		api.POST("/attributes/reload", d.handleReloadAttributes)

		inst := api.Group("/instruments/:name")
		inst.GET("/attributes/:attr", d.handleGetAttribute)
		inst.PUT("/attributes/:attr", d.handleSetAttribute)
		inst.POST("/write", d.handleWrite)
		inst.POST("/query", d.handleQuery)
		inst.GET("/trace", d.handleReadTrace)
		inst.GET("/trace/stream", d.handleTraceStream)
		inst.GET("/spectrum", d.handleSpectrum)
		inst.GET("/timeout", d.handleGetTimeout)
		inst.PUT("/timeout", d.handleSetTimeout)
	}

	return router
}

// requestLogger logs each request through the component logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("http", c.Request.Method+" "+c.Request.URL.Path, map[string]interface{}{
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
