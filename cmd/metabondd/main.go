package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"metabond/cmd/internal/passphrase"
	"metabond/config"
	"metabond/core/protocol"
	"metabond/crypto"
	nativecommon "metabond/native/common"
	"metabond/observability/logging"
	"metabond/observability/otel"
	"metabond/rpc"
	"metabond/storage"
	"metabond/storage/journal"
)

const telemetryShutdownTimeout = 5 * time.Second

func main() {
	configFile := flag.String("config", "./metabond.toml", "Path to the configuration file")
	issueFor := flag.String("issue-token", "", "Print an API token for this address and exit")
	scopes := flag.String("scopes", "", "Space-separated scopes for -issue-token")
	ttl := flag.Duration("ttl", 24*time.Hour, "Lifetime of the token printed by -issue-token")
	flag.Parse()

	if *issueFor != "" {
		if err := issueToken(*configFile, *issueFor, *scopes, *ttl); err != nil {
			fmt.Fprintf(os.Stderr, "metabondd: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "metabondd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{
		Service: "metabondd",
		Env:     cfg.Node.Environment,
		Level:   cfg.Node.LogLevel,
		File:    cfg.Node.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headers := cfg.Telemetry.Headers
	if len(headers) == 0 {
		headers = otel.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	}
	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "metabondd",
		Environment: cfg.Node.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	key, created, err := cfg.OperatorKey(passphrase.NewSource(cfg.Node.PassphraseEnv).Get)
	if err != nil {
		return fmt.Errorf("operator key: %w", err)
	}
	operator := key.Address()
	if created {
		logger.Info("created operator keystore",
			slog.String("path", cfg.Node.KeystorePath),
			slog.String("address", operator.String()))
	}

	deployment, err := cfg.Protocol(operator)
	if err != nil {
		return err
	}
	book, err := cfg.PriceBook()
	if err != nil {
		return err
	}
	pools, err := cfg.PoolSource()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.Node.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	events, err := journal.Open(cfg.Node.JournalPath, logger)
	if err != nil {
		return err
	}
	defer events.Close()

	p, err := protocol.New(db, deployment, protocol.Options{
		Logger: logger,
		Sink:   events,
		Pauses: nativecommon.NewPauses(cfg.Pauses...),
		Feed:   book,
		Pools:  pools,
	})
	if err != nil {
		return err
	}
	ran, err := p.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	logger.Info("protocol ready",
		slog.Bool("genesis", ran),
		slog.String("admin", p.Admin().String()),
		slog.Any("markets", p.Markets()))

	secret, err := cfg.AuthSecret(os.LookupEnv)
	if err != nil {
		return err
	}
	server, err := rpc.NewServer(rpc.Config{
		Protocol:     p,
		Auth:         authConfig(cfg, secret),
		Journal:      events,
		Prices:       book,
		Logger:       logger,
		RateLimit:    cfg.Node.RateLimit,
		RateBurst:    cfg.Node.RateBurst,
		ReadTimeout:  time.Duration(cfg.Node.RPCReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Node.RPCWriteTimeout) * time.Second,
	})
	if err != nil {
		return err
	}

	if cfg.Node.RebaseInterval > 0 {
		go rebaseLoop(ctx, p, time.Duration(cfg.Node.RebaseInterval)*time.Second, logger)
	}

	if err := server.Serve(ctx, cfg.Node.RPCAddress); err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func authConfig(cfg *config.Config, secret []byte) rpc.AuthConfig {
	return rpc.AuthConfig{
		Secret:     secret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
		AdminScope: cfg.Auth.AdminScope,
		ClockSkew:  time.Duration(cfg.Auth.ClockSkew) * time.Second,
	}
}

func issueToken(configFile, subject, scopes string, ttl time.Duration) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	secret, err := cfg.AuthSecret(os.LookupEnv)
	if err != nil {
		return err
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(subject))
	if err != nil {
		return fmt.Errorf("issue-token: %w", err)
	}
	token, err := rpc.IssueToken(authConfig(cfg, secret), addr, strings.Fields(scopes), ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
