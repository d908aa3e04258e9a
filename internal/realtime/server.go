package realtime

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/featherlive/backend/internal/config"
	"github.com/featherlive/backend/internal/metrics"
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	VerifyToken(token string) (userID string, err error)
}

// Server is the websocket listener carrying both socket channels. It runs on
// net/http, separate from the REST listener, because the websocket upgrade
// needs a hijackable connection.
type Server struct {
	cfg       config.RealtimeConfig
	hub       *Hub
	streamCh  *StreamChannel
	messageCh *MessagingChannel
	auth      Authenticator
	metrics   *metrics.Collector
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	srv       *http.Server
}

func NewServer(
	cfg config.RealtimeConfig,
	hub *Hub,
	streamCh *StreamChannel,
	messageCh *MessagingChannel,
	auth Authenticator,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		hub:       hub,
		streamCh:  streamCh,
		messageCh: messageCh,
		auth:      auth,
		metrics:   collector,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/stream", s.serveChannel("stream", func() EventHandler { return s.streamCh }))
	mux.HandleFunc("/ws/chat", s.serveChannel("messaging", func() EventHandler { return s.messageCh }))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if cfg.EnableMetrics && collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}

	s.srv = &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  0, // websocket connections are long-lived
		WriteTimeout: 0,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("realtime listener started", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting upgrades and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) serveChannel(channel string, handler func() EventHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		c := newClient(s.hub, conn, handler(), s.logger, userID, channel,
			s.cfg.SendBufferSize, s.cfg.WriteWait, s.cfg.PongWait)
		s.hub.register(c)

		// Detach from the request context: the connection outlives it.
		go c.run(context.Background())
	}
}

// authenticate accepts the token as a query parameter or bearer header.
func (s *Server) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		const prefix = "Bearer "
		if h := r.Header.Get("Authorization"); len(h) > len(prefix) {
			token = h[len(prefix):]
		}
	}
	return s.auth.VerifyToken(token)
}
