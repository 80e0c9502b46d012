// Command vaultctl runs operator tasks against a vault deployment: schema
// migrations, a one-off reconciliation pass, key generation and minting
// development session tokens.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server"
	"github.com/dmitrijs2005/vaultbox/internal/server/auth"
	"github.com/dmitrijs2005/vaultbox/internal/server/config"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vaultbox/internal/server/services"
)

// CLI commands (see https://github.com/alecthomas/kong)
var CLI struct {
	Config string `short:"c" type:"path" help:"Path to a JSON config file (environment variables still apply)."`

	Migrate struct {
	} `cmd help:"Apply pending database migrations."`

	Reconcile struct {
		DryRun bool `short:"n" help:"Only report what would be repaired."`
	} `cmd help:"Run one reconciliation pass between the blob store and the database."`

	Keygen struct {
		Bytes int `short:"b" default:"32" help:"Secret length in bytes."`
	} `cmd help:"Print a random encryption secret for the encryption key list."`

	Token struct {
		UserID   int64  `short:"u" required help:"User id claim."`
		Username string `help:"Username claim."`
		Email    string `help:"Email claim."`
	} `cmd help:"Mint a session token (development aid; login is handled elsewhere)."`
}

func main() {
	description := "Operator tool for the encrypted file vault."
	kctx := kong.Parse(&CLI, kong.UsageOnError(), kong.Description(description))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch kctx.Selected().Name {
	case "migrate":
		err = migrate(ctx, CLI.Config)
	case "reconcile":
		err = reconcile(ctx, CLI.Config, CLI.Reconcile.DryRun, os.Stdout)
	case "keygen":
		err = keygen(CLI.Keygen.Bytes, os.Stdout)
	case "token":
		err = token(CLI.Config, models.User{
			ID:       CLI.Token.UserID,
			Username: CLI.Token.Username,
			Email:    CLI.Token.Email,
		}, os.Stdout)
	}
	kctx.FatalIfErrorf(err)
}

func migrate(ctx context.Context, configPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db)
}

func reconcile(ctx context.Context, configPath string, dryRun bool, out io.Writer) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := server.NewStore(ctx, cfg)
	if err != nil {
		return err
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)
	r := services.NewReconciler(db, repomanager.NewPostgresRepositoryManager(), store, logger, cfg.StagingPath(), cfg.ReconcileGracePeriod)

	report, runErr := r.Run(ctx, dryRun)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return runErr
}

func keygen(n int, out io.Writer) error {
	if n < 16 {
		return fmt.Errorf("key length must be at least 16 bytes, got %d", n)
	}
	secret, err := common.MakeRandHexString(n)
	if err != nil {
		return fmt.Errorf("read random: %w", err)
	}
	_, err = fmt.Fprintln(out, secret)
	return err
}

func token(configPath string, u models.User, out io.Writer) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if u.ID <= 0 {
		return fmt.Errorf("user id must be positive, got %d", u.ID)
	}

	issuer := auth.NewIssuer([]byte(cfg.SecretKey), cfg.SessionTokenValidityDuration, cfg.MediaTokenValidityDuration)
	tok, err := issuer.IssueSession(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
