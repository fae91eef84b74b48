// Package api provides the HTTP server for the catalog ledger.
//
// State-changing routes take the calling account from the X-Account header
// and submit one operation to the ledger service. Query routes read the
// components directly.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/app/ledger"
	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/sqlite"
)

// CallerHeader carries the account submitting an operation.
const CallerHeader = "X-Account"

// Version is reported by /api/version. Set at build time.
var Version = "0.1.0"

// Server is the catalog ledger HTTP API server.
type Server struct {
	svc            *ledger.Service
	store          *sqlite.DB // optional; serves persisted events and ledger entries
	logger         *zap.Logger
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(svc *ledger.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger, timeout: 30 * time.Second}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetStore sets the database used for event and ledger entry history.
func (s *Server) SetStore(db *sqlite.DB) { s.store = db }

// SetTimeout sets the per-request timeout.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", CallerHeader},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/chain", func(r chi.Router) {
			r.Get("/", s.handleChain)
			r.Post("/mine", s.handleMine)
		})

		r.Route("/token", func(r chi.Router) {
			r.Get("/", s.handleTokenSupply)
			r.Post("/transfer", s.submit(domain.OpTokenTransfer, decodeAs[ledger.TransferArgs]))
			r.Post("/approve", s.submit(domain.OpTokenApprove, decodeAs[ledger.ApproveArgs]))
			r.Get("/{account}", s.handleBalance)
			r.Get("/{owner}/allowances/{spender}", s.handleAllowance)
		})

		r.Route("/staking", func(r chi.Router) {
			r.Get("/", s.handleStakingSummary)
			r.Get("/positions", s.handlePositions)
			r.Get("/positions/{account}", s.handlePosition)
			r.Post("/stake", s.submit(domain.OpStake, noArgs))
			r.Post("/unstake", s.submit(domain.OpUnstake, noArgs))
			r.Post("/rewards", s.submit(domain.OpDepositRewards, decodeAs[ledger.DepositArgs]))
			r.Post("/claims", s.submit(domain.OpClaimReward, decodeAs[ledger.ClaimArgs]))
		})

		r.Route("/sharing", func(r chi.Router) {
			r.Get("/", s.handleSharing)
			r.Post("/", s.submit(domain.OpSharingSet, decodeAs[ledger.SharingArgs]))
			r.Delete("/", s.submit(domain.OpSharingStop, noArgs))
		})

		r.Route("/proposals/{family}", func(r chi.Router) {
			r.Get("/", s.handleListProposals)
			r.Post("/", s.handlePropose)
			r.Get("/{id}", s.handleGetProposal)
			r.Get("/{id}/votes", s.handleListVotes)
			r.Post("/{id}/votes", s.handleVote)
			r.Post("/{id}/close", s.handleClose)
			r.Post("/{id}/close-suspicious", s.handleCloseSuspicious)
			r.Post("/{id}/opinions", s.handleOpinion)
		})

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", s.handleListListings)
			r.Get("/removed", s.handleRemovedListings)
			r.Get("/{id}", s.handleGetListing)
		})

		r.Get("/ranks", s.handleRanks)
		r.Get("/accounts/{account}", s.handleAccount)
		r.Get("/accounts/{account}/proposals", s.handleAccountProposals)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/poll-periods", s.handlePollPeriods)
			r.Put("/poll-periods/{family}", s.handleSetPollPeriod)
		})

		r.Get("/events", s.handleEvents)
		r.Get("/ledger-entries", s.handleLedgerEntries)
		r.Get("/traces", s.handleTraces)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a ledger error to its HTTP status and writes it with
// its kind and numeric code.
func writeDomainError(w http.ResponseWriter, err error) {
	kind := "internal"
	if k := domain.KindOf(err); k != nil {
		kind = k.Error()
	}
	body := map[string]interface{}{
		"message": err.Error(),
		"type":    kind,
	}
	if code := domain.Code(err); code != 0 {
		body["code"] = code
	}
	writeJSON(w, statusFor(err), map[string]interface{}{"error": body})
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTiming):
		return http.StatusTooEarly
	case errors.Is(err, domain.ErrResource):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrReferential):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// caller reads the submitting account from the request.
func caller(r *http.Request) domain.Account {
	return domain.Account(r.Header.Get(CallerHeader))
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid JSON body: %v: %w", err, domain.ErrInvalidArgument)
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number: %w", name, raw, domain.ErrInvalidArgument)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s %q is not a non-negative integer: %w", name, raw, domain.ErrInvalidArgument)
	}
	return n, nil
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("account", r.Header.Get(CallerHeader)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("took", time.Since(start)))
	})
}
