// Command brokerlink-server starts the credential connection manager API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/brokerlink/internal/crypto"
	"github.com/and161185/brokerlink/internal/migrate"
	"github.com/and161185/brokerlink/internal/repository"
	"github.com/and161185/brokerlink/internal/repository/postgres"
	"github.com/and161185/brokerlink/internal/selection"
	httpserver "github.com/and161185/brokerlink/internal/server/http"
	"github.com/and161185/brokerlink/internal/service"
	"github.com/and161185/brokerlink/internal/store"
	"github.com/and161185/brokerlink/internal/validator"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, warms the store from the optional snapshot
// database, and serves the REST API until interrupted.
func main() {
	addr := flag.String("addr", ":8080", "listen address")
	dsn := flag.String("dsn", "", "PostgreSQL DSN for snapshots (empty = memory only)")
	jwtKey := flag.String("jwt-key", "", "HS256 operator token key (required)")
	secretsPass := flag.String("secrets-pass", "", "passphrase sealing secrets at rest (required with -dsn)")
	secretsSalt := flag.String("secrets-salt", "brokerlink-secrets-v1", "salt for the sealing key derivation")
	valDelay := flag.Duration("validator-delay", 1500*time.Millisecond, "simulated handshake latency")
	valTimeout := flag.Duration("validator-timeout", 10*time.Second, "hard per-validation deadline")
	bulkLimit := flag.Int("bulk-limit", 8, "max concurrent items per bulk operation")
	dev := flag.Bool("dev", false, "enable gin debug mode")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", *addr),
	)

	if *jwtKey == "" {
		logger.Fatal("missing operator token key (--jwt-key)")
	}
	if !*dev {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New()
	var repo repository.CredentialRepository
	if *dsn != "" {
		if *secretsPass == "" {
			logger.Fatal("missing secrets passphrase (--secrets-pass)")
		}
		if err := migrate.Up(ctx, *dsn); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, *dsn)
		if err != nil {
			logger.Fatal("postgres.New", zap.Error(err))
		}
		defer db.Close()

		key := crypto.DeriveKey([]byte(*secretsPass), []byte(*secretsSalt))
		pgRepo := postgres.NewCredentialRepo(db, key)
		creds, err := pgRepo.Load(ctx)
		if err != nil {
			logger.Fatal("load snapshots", zap.Error(err))
		}
		if err := st.Warm(creds); err != nil {
			logger.Fatal("warm store", zap.Error(err))
		}
		logger.Info("store warmed", zap.Int("credentials", len(creds)))
		repo = pgRepo
	} else {
		logger.Info("running without persistence")
	}

	v := validator.NewTimeboxed(validator.NewSimulated(*valDelay), *valTimeout)
	svc := service.NewCredentialService(st, v, repo, *bulkLimit, logger)

	h := httpserver.NewHandler(svc, selection.NewRegistry(), logger)
	auth := httpserver.NewAuth([]byte(*jwtKey))
	router := httpserver.NewRouter(h, auth, logger)

	srv := &http.Server{Addr: *addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
