package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/hotdice/pkg/api/handlers"
	"github.com/cbodonnell/hotdice/pkg/api/middleware"
	authproviders "github.com/cbodonnell/hotdice/pkg/auth/providers"
	"github.com/cbodonnell/hotdice/pkg/game"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/cbodonnell/hotdice/pkg/repositories"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
	MatchService *game.MatchService
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	authMiddleware := middleware.NewAuthMiddleware(opts.AuthProvider, opts.Repository)

	router := newRouter(opts, authMiddleware)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: middleware.NewCORSMiddleware(router),
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

func newRouter(opts NewAPIServerOptions, authMiddleware func(http.Handler) http.Handler) http.Handler {
	router := mux.NewRouter()
	router.Handle("/matches", authMiddleware(handlers.HandleCreateMatch(opts.MatchService, opts.Repository))).Methods(http.MethodPost)
	router.Handle("/matches/current", authMiddleware(handlers.HandleCurrentMatch(opts.MatchService))).Methods(http.MethodGet)
	router.Handle("/matches/{sessionID}/decider", authMiddleware(handlers.HandleTurnDeciderChoice(opts.MatchService))).Methods(http.MethodPost)
	router.Handle("/matches/{sessionID}/roll", authMiddleware(handlers.HandleRollDice(opts.MatchService))).Methods(http.MethodPost)
	router.Handle("/matches/{sessionID}/bank", authMiddleware(handlers.HandleBankScore(opts.MatchService))).Methods(http.MethodPost)
	router.Handle("/matches/{sessionID}/leave", authMiddleware(handlers.HandleLeaveMatch(opts.MatchService))).Methods(http.MethodPost)
	return router
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
