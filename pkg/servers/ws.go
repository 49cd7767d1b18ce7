package servers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	authproviders "github.com/cbodonnell/hotdice/pkg/auth/providers"
	"github.com/cbodonnell/hotdice/pkg/bus"
	"github.com/cbodonnell/hotdice/pkg/game"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/cbodonnell/hotdice/pkg/messages"
	"github.com/cbodonnell/hotdice/pkg/repositories"
	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
)

// SnapshotServer streams session snapshots to WebSocket subscribers.
// Each connection follows one session; promotion redirects are streamed
// in-band so the client never has to reconnect.
type SnapshotServer struct {
	port         int
	tls          *TLSConfig
	authProvider authproviders.AuthProvider
	repository   repositories.Repository
	matchService *game.MatchService
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewSnapshotServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
	MatchService *game.MatchService
}

// NewSnapshotServer creates a new WebSocket server for session snapshot streams.
func NewSnapshotServer(opts NewSnapshotServerOptions) *SnapshotServer {
	return &SnapshotServer{
		port:         opts.Port,
		tls:          opts.TLS,
		authProvider: opts.AuthProvider,
		repository:   opts.Repository,
		matchService: opts.MatchService,
	}
}

// Start starts the snapshot server and blocks until the context is
// cancelled or the listener fails.
func (s *SnapshotServer) Start(ctx context.Context) {
	router := mux.NewRouter()
	router.HandleFunc("/ws/matches/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		s.handleSubscribe(ctx, w, r)
	})

	addr := fmt.Sprintf(":%d", s.port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	var listenAndServe func() error
	if s.tls != nil {
		log.Info("Snapshot server listening on %s with TLS", addr)
		listenAndServe = func() error {
			return server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("Snapshot server listening on %s", addr)
		listenAndServe = server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("Snapshot server closed")
			return
		}
		log.Error("Snapshot server error: %v", err)
	}
}

func (s *SnapshotServer) handleSubscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	// Browsers cannot set headers on WebSocket upgrades, so the token
	// rides in the query string.
	token, err := s.authProvider.VerifyToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		log.Error("failed to verify ID token: %v", err)
		http.Error(w, "failed to verify ID token", http.StatusUnauthorized)
		return
	}
	user, err := s.repository.CreateUser(r.Context(), token.UID)
	if err != nil {
		log.Error("failed to create user: %v", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket connection: %v", err)
		return
	}
	log.Debug("New snapshot subscriber for session %s", sessionID)

	go s.streamSession(ctx, conn, sessionID, user.ID)
}

func (s *SnapshotServer) streamSession(ctx context.Context, conn *websocket.Conn, sessionID string, playerID string) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, cancel, err := s.matchService.Subscribe(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFound(err) {
			s.writeError(ctx, conn, "session not found")
			conn.Close(websocket.StatusPolicyViolation, "session not found")
			return
		}
		log.Error("Failed to subscribe to session %s: %v", sessionID, err)
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cancel()

	// CloseRead surfaces client disconnects through the returned context.
	readCtx := conn.CloseRead(ctx)

	for {
		select {
		case <-readCtx.Done():
			log.Trace("Subscriber for session %s disconnected", sessionID)
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Snapshot != nil {
				if _, ok := event.Snapshot.PlayerByID(playerID); !ok {
					conn.Close(websocket.StatusPolicyViolation, "not a session participant")
					return
				}
			}
			message, err := messageForEvent(event)
			if err != nil {
				log.Error("Failed to build message for session %s: %v", sessionID, err)
				continue
			}
			if err := writeMessage(readCtx, conn, message); err != nil {
				log.Trace("Failed to write to subscriber for session %s: %v", sessionID, err)
				return
			}
			if event.Type == bus.EventTypeAborted {
				conn.Close(websocket.StatusNormalClosure, "session aborted")
				return
			}
		}
	}
}

func (s *SnapshotServer) writeError(ctx context.Context, conn *websocket.Conn, errMessage string) {
	message, err := messages.NewServerMessage(messages.MessageTypeServerError, &messages.ServerError{
		Message: errMessage,
	})
	if err != nil {
		return
	}
	_ = writeMessage(ctx, conn, message)
}

func messageForEvent(event bus.Event) (*messages.Message, error) {
	switch event.Type {
	case bus.EventTypeSnapshot:
		return messages.NewServerMessage(messages.MessageTypeServerSnapshot, &messages.ServerSnapshot{
			Session: event.Snapshot,
		})
	case bus.EventTypeRedirect:
		return messages.NewServerMessage(messages.MessageTypeServerRedirect, &messages.ServerRedirect{
			SessionID:  event.SessionID,
			RedirectTo: event.RedirectTo,
			Session:    event.Snapshot,
		})
	case bus.EventTypeAborted:
		return messages.NewServerMessage(messages.MessageTypeServerAborted, &messages.ServerAborted{
			SessionID: event.SessionID,
			Reason:    event.Reason,
		})
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, message *messages.Message) error {
	b, err := messages.SerializeMessage(message)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}
