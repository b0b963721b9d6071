// Package rpc exposes the protocol over a JSON HTTP API.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"metabond/core/pricing"
	"metabond/core/protocol"
	"metabond/storage/journal"
)

const (
	maxRequestBytes   = 1 << 20 // 1 MiB
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config wires the HTTP API. Journal and Prices are optional; their endpoints
// answer 503 when unset.
type Config struct {
	Protocol *protocol.Protocol
	Auth     AuthConfig
	Journal  *journal.Journal
	Prices   *pricing.Book
	Logger   *slog.Logger
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit    float64
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg      Config
	protocol *protocol.Protocol
	journal  *journal.Journal
	prices   *pricing.Book
	logger   *slog.Logger
	auth     *authenticator
	limiter  *rateLimiter
	handler  http.Handler
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Protocol == nil {
		return nil, fmt.Errorf("rpc: protocol required")
	}
	s := &Server{
		cfg:      cfg,
		protocol: cfg.Protocol,
		journal:  cfg.Journal,
		prices:   cfg.Prices,
		logger:   cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	auth, err := newAuthenticator(cfg.Auth, s.logger)
	if err != nil {
		return nil, err
	}
	s.auth = auth
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v chi.Router) {
		if s.limiter != nil {
			v.Use(s.limiter.middleware)
		}
		v.Use(s.auth.middleware)

		v.Get("/markets", s.listMarkets)
		v.Route("/markets/{market}", func(m chi.Router) {
			m.Get("/", s.getMarket)
			m.Get("/quote", s.quoteMarket)
			m.Get("/claims/{address}", s.getClaim)
			m.Post("/deposit", s.deposit)
			m.Post("/redeem", s.redeem)
		})

		v.Get("/treasury", s.treasurySummary)
		v.Post("/treasury/audit", s.auditReserves)

		v.Get("/staking", s.stakingSummary)
		v.Get("/staking/positions/{address}", s.stakingPosition)
		v.Post("/staking/stake", s.stake)
		v.Post("/staking/claim", s.claimWarmup)
		v.Post("/staking/forfeit", s.forfeit)
		v.Post("/staking/lock", s.toggleLock)
		v.Post("/staking/unstake", s.unstake)
		v.Post("/staking/rebase", s.rebase)
		v.Post("/staking/claim-rewards", s.claimRewards)
		v.Post("/staking/claim-and-stake", s.claimAndStake)

		v.Get("/accounts/{address}/balances/{token}", s.balance)
		v.Get("/events", s.listEvents)

		v.Route("/admin", func(a chi.Router) {
			a.Use(s.auth.requireScope(s.auth.cfg.AdminScope))
			a.Post("/pauses", s.setPause)
			a.Post("/prices", s.setPrice)

			a.Post("/treasury/permissions", s.togglePermission)
			a.Post("/treasury/withdraw", s.withdrawReserves)
			a.Post("/treasury/manage", s.manageReserves)
			a.Post("/treasury/payout-price", s.updatePayoutPrice)

			a.Post("/markets/{market}/terms", s.setBondTerms)
			a.Post("/markets/{market}/adjustment", s.setBondAdjustment)
			a.Post("/markets/{market}/minimum-price", s.setMinimumPrice)
			a.Post("/markets/{market}/dao", s.setDAO)

			a.Post("/distributor/recipients", s.addRecipient)
			a.Post("/distributor/recipients/remove", s.removeRecipient)
			a.Post("/distributor/adjustment", s.setRecipientAdjustment)

			a.Post("/staking/reward-limit", s.adjustRewardLimit)
			a.Post("/staking/warmup", s.setWarmupPeriod)

			a.Post("/valuators/{valuator}/markdown", s.setMarkdown)
			a.Post("/valuators/{valuator}/price", s.setValuatorPrice)
			a.Post("/valuators/{valuator}/feed", s.setValuatorFeed)
			a.Post("/valuators/{valuator}/pair", s.setValuatorPair)
		})
	})
	return otelhttp.NewHandler(r, "metabond.rpc")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	initialized, err := s.protocol.Initialized()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !initialized {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"initialized": initialized})
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
