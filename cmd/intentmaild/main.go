// Command intentmaild is the IntentMail daemon: it loads configuration,
// opens and migrates the database, wires the operation façade, and
// blocks until SIGINT/SIGTERM, running a periodic sync sweep over every
// active account in the background.
//
// Build:
//
//	go build -o intentmaild ./cmd/intentmaild
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/intentmail/intentmail/internal/config"
	"github.com/intentmail/intentmail/internal/credentials"
	"github.com/intentmail/intentmail/internal/database"
	"github.com/intentmail/intentmail/internal/facade"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/intentmail/intentmail/internal/provider/gmailapi"
	"github.com/intentmail/intentmail/internal/provider/graphapi"
	_ "github.com/intentmail/intentmail/internal/provider/imapsmtp"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "intentmaild: %v\n", err)
		return 1
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logging.WithComponent("intentmaild")

	if cfg.IsGmailConfigured() {
		gmailapi.Configure(cfg.GmailClientID, cfg.GmailClientSecret)
	}
	if cfg.IsOutlookConfigured() {
		graphapi.Configure(cfg.OutlookClientID, cfg.OutlookClientSecret, cfg.OutlookTenantID)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		return 1
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Error().Err(err).Msg("failed to run migrations")
		return 1
	}
	log.Info().Str("path", cfg.DBPath).Msg("database ready")

	creds := credentials.NewStore(db.DB, cfg.EncryptionKey)
	f := facade.New(cfg, db, creds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go db.StartCheckpointRoutine(ctx)
	f.StartBackgroundSync(ctx)

	log.Info().Msg("intentmaild started")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	f.StopBackgroundSync()
	if err := db.Checkpoint(); err != nil {
		log.Warn().Err(err).Msg("final WAL checkpoint failed")
	}
	return 0
}
