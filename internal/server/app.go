// Package server wires the vault together: configuration, database and
// migrations, the encryption keyring, the blob store backend, the HTTP
// transport and the background reconciler. It also owns graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/vaultbox/internal/cryptox"
	"github.com/dmitrijs2005/vaultbox/internal/filex"
	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server/auditlog"
	"github.com/dmitrijs2005/vaultbox/internal/server/auth"
	"github.com/dmitrijs2005/vaultbox/internal/server/blobstore"
	"github.com/dmitrijs2005/vaultbox/internal/server/config"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vaultbox/internal/server/rest"
	"github.com/dmitrijs2005/vaultbox/internal/server/services"
	"github.com/gin-gonic/gin"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	keys        *cryptox.Keyring
	tokens      *auth.Issuer
	fileService *services.FileService
	reconciler  *services.Reconciler
}

// NewApp opens the database, applies migrations and builds every service.
// The returned App owns the database handle and the key material; call
// Close when done.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	keys, err := cryptox.NewKeyring(c.EncryptionKeys, c.ActiveKeyID)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keyring: %w", err)
	}
	logger.Info(ctx, "keyring loaded", "key_ids", keys.IDs(), "active", keys.ActiveKeyID())

	store, err := NewStore(ctx, c)
	if err != nil {
		keys.Close()
		_ = db.Close()
		return nil, err
	}
	if _, err := filex.EnsureDir(c.StagingPath()); err != nil {
		keys.Close()
		_ = db.Close()
		return nil, fmt.Errorf("staging dir: %w", err)
	}

	tokens := auth.NewIssuer([]byte(c.SecretKey), c.SessionTokenValidityDuration, c.MediaTokenValidityDuration)
	sink := auditlog.NewSink(rm.Audit(db), logger.With("module", "audit"))

	fileSvc := services.NewFileService(db, rm, store, cryptox.NewCipher(keys), tokens, sink, logger.With("module", "files"), c)
	rc := services.NewReconciler(db, rm, store, logger.With("module", "reconciler"), c.StagingPath(), c.ReconcileGracePeriod)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		keys:        keys,
		tokens:      tokens,
		fileService: fileSvc,
		reconciler:  rc,
	}, nil
}

// NewStore builds the blob store selected by c.StorageBackend. The staging
// directory is hidden from the filesystem store's listing when it lives
// inside the storage root.
func NewStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.StorageBackend {
	case config.StorageBackendS3:
		s, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			User:     c.S3RootUser,
			Password: c.S3RootPassword,
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3BaseEndpoint,
			Prefix:   c.S3Prefix,
			SpoolDir: c.StagingPath(),
		})
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		return s, nil
	default:
		var skip []string
		if rel, ok := stagingInsideRoot(c); ok {
			skip = append(skip, rel)
		}
		s, err := blobstore.NewFSStore(c.StorageRoot, skip...)
		if err != nil {
			return nil, fmt.Errorf("fs store: %w", err)
		}
		return s, nil
	}
}

// stagingInsideRoot returns the staging directory relative to the storage
// root when it lives inside it.
func stagingInsideRoot(c *config.Config) (string, bool) {
	root, err := filepath.Abs(c.StorageRoot)
	if err != nil {
		return "", false
	}
	staging, err := filepath.Abs(c.StagingPath())
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, staging)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := rest.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.fileService, app.tokens, app.config.AllowedOrigins)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startReconciler(ctx context.Context) {
	if app.config.ReconcileInterval <= 0 {
		app.logger.Info(ctx, "Background reconciler disabled")
		return
	}
	app.logger.Info(ctx, "Starting reconciler", "interval", app.config.ReconcileInterval)
	app.reconciler.RunPeriodic(ctx, app.config.ReconcileInterval)
}

// Run blocks until a termination signal arrives or the HTTP server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startReconciler(ctx)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
}

// Close releases the database and wipes key material from memory.
func (app *App) Close() error {
	app.keys.Close()
	return app.db.Close()
}
