// Package rest is the HTTP transport: gin routes for the file endpoints,
// token middleware and the mapping from service errors to JSON responses.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 15 * time.Second

type HTTPServer struct {
	address string
	logger  logging.Logger
	engine  *gin.Engine
}

// NewHTTPServer builds the router. allowedOrigins feeds CORS; an empty list
// disables cross-origin access.
func NewHTTPServer(address string, l logging.Logger, files FileService, tokens TokenVerifier, allowedOrigins []string) *HTTPServer {
	logger := l.With("module", "http_server")

	engine := gin.New()
	engine.Use(recoverer(logger), requestLogger(logger), clientInfo())
	if len(allowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := NewFileHandler(files, logger)
	session := requireSession(tokens)
	media := requireMedia(tokens)

	api := engine.Group("/files")
	{
		api.POST("/upload", session, h.Upload)
		api.GET("", session, h.List)
		api.GET("/stats", session, h.Stats)
		api.GET("/token/:id", session, h.MediaToken)
		api.GET("/view/:id", media, h.View)
		api.GET("/stream/:id", media, h.Stream)
		api.GET("/thumbnail/:id", media, h.Thumbnail)
		api.GET("/download/:id", session, h.Download)
		api.PATCH("/:id", session, h.Rename)
		api.DELETE("/:id", session, h.Delete)
		api.PUT("/move", session, h.Move)
		api.POST("/copy", session, h.Copy)
	}
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &HTTPServer{address: address, logger: logger, engine: engine}
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
