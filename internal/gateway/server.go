// Package gateway is the HTTP transport: channel webhooks, the staff REST API,
// outbound WhatsApp sends, health probes, the live feed and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"frontdesk/internal/delivery"
	"frontdesk/internal/domain"
	"frontdesk/internal/intent"
	"frontdesk/internal/routing"
	"frontdesk/internal/store"
)

const maxBodySize = 1 << 20 // 1MB

// ChannelAuth holds the inbound webhook settings of one channel.
type ChannelAuth struct {
	Enabled     bool
	VerifyToken string
	AppSecret   string // empty disables X-Hub-Signature-256 checking
}

// Ingester is the routing pipeline as seen by the transport.
type Ingester interface {
	VerificationChallenge(ch domain.Channel, raw []byte) (string, bool)
	Ingest(ctx context.Context, ch domain.Channel, raw []byte) (*routing.IngestResult, error)
}

// MessageStore is the read/triage side of the store.
type MessageStore interface {
	ListMessages(ctx context.Context, f store.MessageFilter) ([]domain.StoredMessage, error)
	GetMessage(ctx context.Context, id int64) (domain.StoredMessage, error)
	UpdateMessageStatus(ctx context.Context, id int64, status domain.MessageStatus) error
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (domain.Customer, error)
	Ping(ctx context.Context) error
}

// WhatsAppSender is implemented by *delivery.WhatsApp.
type WhatsAppSender interface {
	SendTemplate(ctx context.Context, recipient, template, languageCode string) domain.DeliveryResult
	Status(ctx context.Context, messageID string) (domain.DeliveryResult, error)
	UpdateStatus(messageID, status string) bool
	Health() delivery.Health
	Info() delivery.Info
}

// Config configures the Server. Pipeline is required; a nil Store, WhatsApp,
// Feed or Metrics disables the routes that need it.
type Config struct {
	Host            string
	Port            int
	APIPrefix       string // default /api/v1
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	Channels        map[domain.Channel]ChannelAuth

	Pipeline    Ingester
	Store       MessageStore
	Dispatcher  *delivery.Dispatcher
	WhatsApp    WhatsAppSender
	Classify    routing.ClassifyFunc
	Feed        http.Handler
	Metrics     http.Handler
	MetricsPath string

	Name    string
	Version string
	Logger  *slog.Logger
}

// Server serves the frontdesk HTTP API.
type Server struct {
	cfg     Config
	handler http.Handler
	logger  *slog.Logger
}

// New builds the route table.
func New(cfg Config) *Server {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	cfg.APIPrefix = strings.TrimSuffix(cfg.APIPrefix, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Classify == nil {
		cfg.Classify = intent.Classify
	}
	if cfg.Name == "" {
		cfg.Name = "frontdesk"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.handler = s.cors(s.routes())
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() *http.ServeMux {
	p := s.cfg.APIPrefix
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+p+"/webhooks/{channel}", s.timeout(s.handleVerify))
	mux.HandleFunc("POST "+p+"/webhooks/{channel}", s.timeout(s.handleWebhook))

	mux.HandleFunc("GET "+p+"/messages", s.timeout(s.handleListMessages))
	mux.HandleFunc("GET "+p+"/messages/{id}", s.timeout(s.handleGetMessage))
	mux.HandleFunc("PATCH "+p+"/messages/{id}", s.timeout(s.handleUpdateMessage))
	mux.HandleFunc("GET "+p+"/customers", s.timeout(s.handleListCustomers))
	mux.HandleFunc("GET "+p+"/customers/{id}", s.timeout(s.handleGetCustomer))

	mux.HandleFunc("POST "+p+"/whatsapp/send", s.timeout(s.handleSend))
	mux.HandleFunc("POST "+p+"/whatsapp/send-template", s.timeout(s.handleSendTemplate))
	mux.HandleFunc("GET "+p+"/whatsapp/status/{id}", s.timeout(s.handleDeliveryStatus))
	mux.HandleFunc("GET "+p+"/whatsapp/health", s.handleWhatsAppHealth)
	mux.HandleFunc("GET "+p+"/whatsapp/config", s.handleWhatsAppConfig)

	mux.HandleFunc("POST "+p+"/classify", s.handleClassify)

	for _, base := range []string{"", p} {
		mux.HandleFunc("GET "+base+"/health", s.handleHealth)
		mux.HandleFunc("GET "+base+"/health/ready", s.timeout(s.handleReady))
		mux.HandleFunc("GET "+base+"/health/live", s.handleLive)
	}
	mux.HandleFunc("GET /{$}", s.handleRoot)

	if s.cfg.Feed != nil {
		mux.Handle("GET /feed", s.cfg.Feed)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.cfg.Metrics)
	}
	return mux
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("http server started", "addr", "http://"+addr, "api_prefix", s.cfg.APIPrefix)

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// timeout bounds a handler's context by the request timeout. The feed is not
// wrapped: its connections are long-lived.
func (s *Server) timeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		return next
	}
	allowAll := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || slices.Contains(origins, origin)) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Hub-Signature-256")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
