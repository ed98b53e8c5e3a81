// Package server exposes issuance and verification over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"docanchor.dev/docanchor/issuance"
	"docanchor.dev/docanchor/journal"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/verification"
)

// DefaultMaxUploadBytes bounds multipart uploads when Config leaves it zero.
const DefaultMaxUploadBytes = 32 << 20

// History is the read side of the journal.
type History interface {
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]journal.Entry, error)
}

// Config wires a Server. Issuer and Verifier are required; History is optional.
type Config struct {
	Issuer         *issuance.Orchestrator
	Verifier       *verification.Verifier
	History        History
	Derivation     keys.Derivation
	MaxUploadBytes int64
	Log            *zap.SugaredLogger
}

type Server struct {
	cfg    Config
	log    *zap.SugaredLogger
	router chi.Router
}

func New(cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{cfg: cfg, log: logger.Or(cfg.Log)}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(accessLog(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api", func(api chi.Router) {
		api.Post("/mint", s.handleMint)
		api.Post("/verify", s.handleVerify)
		api.Post("/unlock", s.handleUnlock)
		api.Get("/challenge", s.handleChallenge)
		api.Get("/tokens/{id}", s.handleToken)
		api.Get("/owners/{address}/tokens", s.handlePortfolio)
		api.Get("/history/{address}", s.handleHistory)
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
