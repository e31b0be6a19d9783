package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/chorewheel/internal/config"
	"github.com/dukerupert/chorewheel/internal/email"
	"github.com/dukerupert/chorewheel/internal/engine"
	"github.com/dukerupert/chorewheel/internal/handler"
	"github.com/dukerupert/chorewheel/internal/middleware"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/notify"
	"github.com/dukerupert/chorewheel/internal/push"
	"github.com/dukerupert/chorewheel/internal/sms"
	"github.com/dukerupert/chorewheel/internal/store"
	ws "github.com/dukerupert/chorewheel/internal/websocket"
)

// Trigger endpoints are cheap to call and expensive to run.
const (
	triggerRatePerSec = 0.2
	triggerBurst      = 2
	apiRatePerSec     = 10
	apiBurst          = 40
)

type Server struct {
	db          *sqlx.DB
	cfg         *config.Config
	hub         *ws.Hub
	stores      engine.Stores
	pushStore   *store.PushStore
	pushService *push.Service
	engine      *engine.Engine

	householdH *handler.HouseholdHandler
	memberH    *handler.MemberHandler
	choreH     *handler.ChoreHandler
	pushH      *handler.PushHandler
	triggerH   *handler.TriggerHandler

	apiLimiter     *middleware.RateLimiter
	triggerLimiter *middleware.RateLimiter
	logger         *slog.Logger
}

// Stores builds every store over db.
func Stores(db *sqlx.DB) engine.Stores {
	return engine.Stores{
		Households:    store.NewHouseholdStore(db),
		Members:       store.NewMemberStore(db),
		Chores:        store.NewChoreStore(db),
		History:       store.NewHistoryStore(db),
		Notifications: store.NewNotificationStore(db),
	}
}

// NewTransport registers a sender for every channel the configuration
// enables. Channels left out are reported as not configured on delivery.
func NewTransport(cfg *config.Config, pushSvc *push.Service, logger *slog.Logger) *notify.MultiTransport {
	t := notify.NewMultiTransport(cfg.SendRatePerSec, logger.With("component", "transport"))

	if cfg.EmailConfigured() {
		var opts []email.Option
		if cfg.PostmarkURL != "" {
			opts = append(opts, email.WithBaseURL(cfg.PostmarkURL))
		}
		t.Register(model.ChannelEmail, email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, opts...))
	}
	if cfg.SMSConfigured() {
		var opts []sms.Option
		if cfg.TwilioURL != "" {
			opts = append(opts, sms.WithBaseURL(cfg.TwilioURL))
		}
		t.Register(model.ChannelSMS, sms.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, opts...))
	}
	if pushSvc != nil && pushSvc.Configured() {
		t.Register(model.ChannelPush, pushSvc)
	}
	return t
}

// NewEngine wires the engine with the configured channels. hub may be nil
// when nothing listens for live updates, as in the CLI.
func NewEngine(db *sqlx.DB, cfg *config.Config, hub engine.Broadcaster, logger *slog.Logger) (*engine.Engine, *push.Service) {
	stores := Stores(db)
	var pushSvc *push.Service
	if cfg.PushConfigured() {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject,
			store.NewPushStore(db), logger.With("component", "push"))
	}
	eng := engine.New(stores, NewTransport(cfg, pushSvc, logger), hub, engine.Options{
		Workers:        cfg.Workers,
		ReminderWindow: cfg.ReminderWindow,
	}, logger.With("component", "engine"))
	return eng, pushSvc
}

func New(db *sqlx.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	stores := Stores(db)
	eng, pushSvc := NewEngine(db, cfg, hub, logger)
	pushSt := store.NewPushStore(db)

	return &Server{
		db:          db,
		cfg:         cfg,
		hub:         hub,
		stores:      stores,
		pushStore:   pushSt,
		pushService: pushSvc,
		engine:      eng,

		householdH: handler.NewHouseholdHandler(stores, eng, hub, logger.With("component", "household")),
		memberH:    handler.NewMemberHandler(stores, eng, hub, logger.With("component", "member")),
		choreH:     handler.NewChoreHandler(stores, eng, hub, logger.With("component", "chore")),
		pushH:      handler.NewPushHandler(stores, pushSt, pushSvc, logger.With("component", "push_handler")),
		triggerH:   handler.NewTriggerHandler(eng, logger.With("component", "trigger")),

		apiLimiter:     middleware.NewRateLimiter(apiRatePerSec, apiBurst),
		triggerLimiter: middleware.NewRateLimiter(triggerRatePerSec, triggerBurst),
		logger:         logger,
	}
}

// Engine returns the engine for the in-process trigger source.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// NotificationStore returns the notification store for cleanup tasks.
func (s *Server) NotificationStore() *store.NotificationStore {
	return s.stores.Notifications
}

// RateLimiters returns the limiters for cleanup tasks.
func (s *Server) RateLimiters() []*middleware.RateLimiter {
	return []*middleware.RateLimiter{s.apiLimiter, s.triggerLimiter}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	api := http.NewServeMux()
	s.registerRoutes(api)
	mux.Handle("/api/", middleware.RateLimit(s.apiLimiter, middleware.RealIP)(middleware.Actor(api)))

	trigger := http.NewServeMux()
	trigger.HandleFunc("POST /api/trigger/rotations", s.triggerH.Rotations)
	trigger.HandleFunc("POST /api/trigger/reminders", s.triggerH.Reminders)
	guard := middleware.RequireToken(s.cfg.TriggerToken)
	limit := middleware.RateLimit(s.triggerLimiter, middleware.RealIP)
	mux.Handle("/api/trigger/", limit(guard(trigger)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Households
	mux.HandleFunc("POST /api/households", s.householdH.Create)
	mux.HandleFunc("GET /api/households/{code}", s.householdH.Get)
	mux.HandleFunc("DELETE /api/households/{code}", s.householdH.Delete)
	mux.HandleFunc("GET /api/households/{code}/status", s.householdH.Status)
	mux.HandleFunc("GET /api/households/{code}/notifications", s.householdH.Notifications)
	mux.HandleFunc("POST /api/households/{code}/notifications", s.householdH.SendNotification)
	mux.HandleFunc("POST /api/households/{code}/rotate", s.householdH.Rotate)
	mux.HandleFunc("GET /api/households/{code}/rotation-history", s.householdH.RotationHistory)

	// Members
	mux.HandleFunc("GET /api/households/{code}/members", s.memberH.List)
	mux.HandleFunc("POST /api/households/{code}/members", s.memberH.Join)
	mux.HandleFunc("PUT /api/households/{code}/members/{id}", s.memberH.Update)
	mux.HandleFunc("DELETE /api/households/{code}/members/{id}", s.memberH.Delete)

	// Chores
	mux.HandleFunc("GET /api/households/{code}/chores", s.choreH.List)
	mux.HandleFunc("POST /api/households/{code}/chores", s.choreH.Create)
	mux.HandleFunc("PUT /api/chores/{id}", s.choreH.Update)
	mux.HandleFunc("DELETE /api/chores/{id}", s.choreH.Delete)
	mux.HandleFunc("POST /api/chores/{id}/complete", s.choreH.Complete)
	mux.HandleFunc("POST /api/chores/{id}/rotate", s.choreH.Rotate)
	mux.HandleFunc("GET /api/chores/{id}/history", s.choreH.History)

	// Reminders
	mux.HandleFunc("GET /api/reminders/preview", s.triggerH.Preview)

	// Push
	mux.HandleFunc("GET /api/households/{code}/members/{id}/push-subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("POST /api/households/{code}/members/{id}/push-subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/households/{code}/members/{id}/push-subscriptions/{sub_id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	// WebSocket
	mux.HandleFunc("GET /api/households/{code}/ws", ws.HandleWebSocket(s.hub, s.stores.Households, s.logger.With("component", "websocket")))
}
