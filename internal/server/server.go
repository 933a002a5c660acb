package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/server/handler"
	"github.com/alanyoungcy/propertyx/internal/server/middleware"
	"github.com/alanyoungcy/propertyx/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimitPerMin caps requests per client IP; zero disables it.
	RateLimitPerMin int
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Handlers aggregates all HTTP handlers that the server registers. Nil
// entries leave their routes unregistered.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Session     *handler.SessionHandler
	Marketplace *handler.MarketplaceHandler
	Staking     *handler.StakingHandler
	Proposals   *handler.ProposalHandler
	Admin       *handler.AdminHandler
	Contracts   *handler.ContractHandler
	Assets      *handler.AssetHandler
	Pipeline    *handler.PipelineHandler
}

// Instrumenter wraps the mux with request metrics and serves them.
type Instrumenter interface {
	InstrumentHandler(next http.Handler) http.Handler
	Handler() http.Handler
}

// Options are the server's optional collaborators.
type Options struct {
	Hub     *ws.Hub
	Limiter domain.RateLimiter
	Metrics Instrumenter
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// The middleware chain is, outermost first: CORS, logging, metrics, rate
// limit, auth.
func NewServer(cfg Config, handlers Handlers, opts Options, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	registerRoutes(mux, handlers)

	if opts.Hub != nil {
		mux.HandleFunc("GET /ws", opts.Hub.HandleWS)
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(opts.Limiter, cfg.RateLimitPerMin, time.Minute, logger)(h)
	if opts.Metrics != nil {
		h = opts.Metrics.InstrumentHandler(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

func registerRoutes(mux *http.ServeMux, h Handlers) {
	if h.Health != nil {
		mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	}
	if h.Status != nil {
		mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	}

	if s := h.Session; s != nil {
		mux.HandleFunc("GET /api/session", s.GetSession)
		mux.HandleFunc("POST /api/session/connect", s.Connect)
		mux.HandleFunc("POST /api/session/disconnect", s.Disconnect)
		mux.HandleFunc("POST /api/session/balance/refresh", s.RefreshBalance)
	}

	if m := h.Marketplace; m != nil {
		mux.HandleFunc("GET /api/marketplace", m.GetMarketplace)
		mux.HandleFunc("POST /api/marketplace/refresh", m.RefreshMarketplace)
		mux.HandleFunc("GET /api/marketplace/listings", m.ListIndexed)
		mux.HandleFunc("POST /api/marketplace/listings", m.ListAsset)
		mux.HandleFunc("POST /api/marketplace/listings/{id}/cancel", m.CancelListing)
		mux.HandleFunc("POST /api/marketplace/listings/{id}/fulfil", m.FulfilListing)
	}

	if s := h.Staking; s != nil {
		mux.HandleFunc("POST /api/staking/stake", s.Stake)
		mux.HandleFunc("POST /api/staking/lock", s.Lock)
	}

	if p := h.Proposals; p != nil {
		mux.HandleFunc("POST /api/tokenize", p.Tokenize)
		mux.HandleFunc("GET /api/proposals", p.ListProposals)
		mux.HandleFunc("GET /api/proposals/{id}", p.GetProposal)
		mux.HandleFunc("POST /api/proposals/{id}/vote", p.Vote)
	}

	if a := h.Admin; a != nil {
		mux.HandleFunc("GET /api/admin/status", a.Status)
		mux.HandleFunc("POST /api/admin/marketplace-contract", a.UpdateMarketplaceContract)
		mux.HandleFunc("POST /api/admin/kyc-contract", a.UpdateKycContract)
		mux.HandleFunc("POST /api/admin/whitelist", a.SetWhitelisted)
	}

	if c := h.Contracts; c != nil {
		mux.HandleFunc("POST /api/contracts/call", c.Call)
		mux.HandleFunc("POST /api/contracts/read", c.Read)
		mux.HandleFunc("GET /api/tx/{txid}", c.GetTx)
		mux.HandleFunc("GET /api/transactions", c.ListTransactions)
	}

	if a := h.Assets; a != nil {
		mux.HandleFunc("GET /api/assets/nft/{id}/owner", a.GetNFTOwner)
		mux.HandleFunc("GET /api/assets/{owner}/{id}", a.GetAsset)
	}

	if h.Pipeline != nil {
		mux.HandleFunc("POST /api/pipeline/index", h.Pipeline.TriggerIndex)
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
