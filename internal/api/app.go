package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/teamhub/chatcore/internal/chat"
	"github.com/teamhub/chatcore/internal/config"
	"github.com/teamhub/chatcore/internal/database"
	"github.com/teamhub/chatcore/internal/push"
)

// ChatApp is the HTTP surface exposed to UI and CLI collaborators. All chat
// semantics live behind the facade; handlers only translate requests and
// error kinds.
type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	facade         *chat.ChatFacade
	gateway        *push.Gateway
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, facade *chat.ChatFacade, gw *push.Gateway, db database.ChatRepository, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		facade:         facade,
		gateway:        gw,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("POST /api/rooms/direct", s.authMiddleware(s.openDirectRoom))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createGroupRoom))
	mux.Handle("PATCH /api/rooms", s.authMiddleware(s.renameRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.Handle("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/notifications", s.authMiddleware(s.getNotifications))
	mux.Handle("POST /api/notifications/read", s.authMiddleware(s.markNotificationRead))
	mux.Handle("DELETE /api/notifications", s.authMiddleware(s.deleteNotification))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
