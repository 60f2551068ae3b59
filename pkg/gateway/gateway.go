package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	authproviders "github.com/openvtt/battlemap/pkg/auth/providers"
	"github.com/openvtt/battlemap/pkg/battlefield"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/repositories"
	"github.com/openvtt/battlemap/pkg/rooms"
	"github.com/openvtt/battlemap/pkg/types"
)

// Gateway is the realtime transport. It authenticates connections with
// the same bearer tokens as the REST path, dispatches inbound events, and
// relays them through the room registry. Inbound mutations are validated
// against the scene store before they are broadcast.
type Gateway struct {
	server       *http.Server
	tls          *TLSConfig
	ctx          context.Context
	rooms        *rooms.RoomManager
	store        *battlefield.Store
	authProvider authproviders.AuthProvider
	repository   repositories.Repository
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewGatewayOptions struct {
	Port         int
	TLS          *TLSConfig
	Rooms        *rooms.RoomManager
	Store        *battlefield.Store
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewGateway creates a new Gateway. All realtime traffic shares one
// websocket path; room scoping happens at the application layer via
// join/leave events.
func NewGateway(opts NewGatewayOptions) *Gateway {
	g := &Gateway{
		tls:          opts.TLS,
		ctx:          context.Background(),
		rooms:        opts.Rooms,
		store:        opts.Store,
		authProvider: opts.AuthProvider,
		repository:   opts.Repository,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleUpgrade)
	g.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: mux,
	}
	return g
}

// Start starts the Gateway. The context bounds the lifetime of every
// session spawned from here; the upgrade request's own context dies with
// the upgrade handler and must not be used past it.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx = ctx
	var listenAndServe func() error
	if g.tls != nil {
		log.Info("Gateway listening on %s with TLS", g.server.Addr)
		listenAndServe = func() error {
			return g.server.ListenAndServeTLS(g.tls.CertFile, g.tls.KeyFile)
		}
	} else {
		log.Info("Gateway listening on %s", g.server.Addr)
		listenAndServe = g.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("Gateway closed")
			return
		}
		log.Error("Gateway error: %v", err)
	}
}

// Stop stops the Gateway.
func (g *Gateway) Stop(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	actor, err := g.authenticate(r)
	if err != nil {
		log.Debug("Rejected websocket connection: %v", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}

	s := newSession(uuid.NewString(), actor, conn)
	log.Debug("New websocket session %s for user %s from %s", s.id, actor.UserID, conn.RemoteAddr().String())
	go s.writePump()
	go g.readLoop(s)
}

func (g *Gateway) readLoop(s *session) {
	ctx, cancel := context.WithCancel(g.ctx)
	defer func() {
		cancel()
		g.rooms.LeaveAll(s)
		s.close()
	}()

	for {
		msg, err := readMessage(s.conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading websocket message from session %s: %v", s.id, err)
			}
			log.Trace("Connection closed for session %s", s.id)
			return
		}

		g.dispatch(ctx, s, msg)
	}
}

// authenticate resolves the connecting user from a bearer token in the
// Authorization header or a token query parameter.
func (g *Gateway) authenticate(r *http.Request) (types.Actor, error) {
	token := r.URL.Query().Get("token")
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return types.Actor{}, fmt.Errorf("invalid Authorization header format")
		}
		token = parts[1]
	}
	if token == "" {
		return types.Actor{}, fmt.Errorf("no token provided")
	}

	claims, err := g.authProvider.VerifyToken(r.Context(), token)
	if err != nil {
		return types.Actor{}, fmt.Errorf("failed to verify token: %v", err)
	}

	user, err := g.repository.GetOrCreateUser(r.Context(), claims.UID)
	if err != nil {
		return types.Actor{}, fmt.Errorf("failed to resolve user: %v", err)
	}

	return types.Actor{UserID: user.ID, Role: user.Role}, nil
}
