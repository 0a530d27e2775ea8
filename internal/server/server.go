// Package server is the backend the client talks to: cookie-session auth,
// notification history and publish, the websocket push hub, and the
// collaborator data endpoints.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/courant-live/courant/internal/config"
)

type Server struct {
	cfg           config.Config
	log           zerolog.Logger
	auth          *Auth
	hub           *Hub
	bus           Publisher
	notifications *Notifications
	catalog       *Catalog
}

// New wires the server. With cfg.Redis.Addr set the publish path goes
// through Redis pub/sub; otherwise it stays in-process.
func New(cfg config.Config, log zerolog.Logger) (*Server, error) {
	hub := NewHub(cfg.Server.AllowedOrigins, log)

	var bus Publisher
	if cfg.Redis.Addr != "" {
		rb, err := NewRedisBus(cfg.Redis, hub, log)
		if err != nil {
			return nil, fmt.Errorf("redis bus: %w", err)
		}
		bus = rb
		log.Info().Str("addr", cfg.Redis.Addr).Msg("publishing via redis")
	} else {
		bus = NewLocalBus(hub)
	}

	return &Server{
		cfg:           cfg,
		log:           log.With().Str("component", "server").Logger(),
		auth:          NewAuth(cfg.Server.SessionTTL.Std(), log),
		hub:           hub,
		bus:           bus,
		notifications: NewNotifications(bus, cfg.Notify.Topic, log),
		catalog:       NewCatalog(),
	}, nil
}

// Auth exposes the account store for provisioning.
func (s *Server) Auth() *Auth { return s.auth }

// Hub exposes the push hub, mainly for tests and stats.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the HTTP surface. The auth endpoints and the push
// endpoint are public; the data endpoints require a session.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.hub.HandleWS)

	r.HandleFunc("/api/auth/login", s.auth.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/register", s.auth.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", s.auth.HandleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/me", s.auth.HandleMe).Methods(http.MethodGet)

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(s.auth.Require)

	protected.HandleFunc("/notifications", s.notifications.HandleList).Methods(http.MethodGet)
	protected.HandleFunc("/notifications/send", s.notifications.HandleSend).Methods(http.MethodPost)

	protected.HandleFunc("/products", s.catalog.HandleListProducts).Methods(http.MethodGet)
	protected.HandleFunc("/products", s.catalog.HandleCreateProduct).Methods(http.MethodPost)
	protected.HandleFunc("/products/{id}", s.catalog.HandleUpdateProduct).Methods(http.MethodPut)
	protected.HandleFunc("/products/{id}", s.catalog.HandleDeleteProduct).Methods(http.MethodDelete)

	protected.HandleFunc("/weather/{city}", s.catalog.HandleWeather).Methods(http.MethodGet)
	protected.HandleFunc("/weather/refresh/{city}", s.catalog.HandleRefreshWeather).Methods(http.MethodPost)

	protected.HandleFunc("/currencies/all", s.catalog.HandleListCurrencies).Methods(http.MethodGet)
	protected.HandleFunc("/currencies/{from}/{to}/{amount}", s.catalog.HandleConvert).Methods(http.MethodGet)

	return r
}

// Close releases the publish bus.
func (s *Server) Close() error {
	return s.bus.Close()
}

// ListenAndServe runs the server on the configured address.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.log.Info().Str("addr", addr).Msg("server listening")
	return http.ListenAndServe(addr, s.Router())
}
