package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/service"
	"github.com/digkill/TGContentBot/internal/telegram"
)

type Analyzer interface {
	Analyze(ctx context.Context, userID int64, channel string) (*service.AnalysisResult, error)
	Get(ctx context.Context, userID int64, channel string) (*models.ChannelAnalysis, error)
}

type Planner interface {
	Generate(ctx context.Context, userID int64, req service.PlanRequest) (*service.PlanResult, error)
	List(ctx context.Context, userID int64, channel string) ([]models.Idea, error)
	Delete(ctx context.Context, userID int64, id string) error
}

type PostWriter interface {
	Generate(ctx context.Context, userID int64, req service.PostRequest) (*service.PostResult, error)
	List(ctx context.Context, userID int64, channel string) ([]models.SavedPost, error)
}

type Ledger interface {
	Status(ctx context.Context, userID int64) service.Status
	CreateSubscription(ctx context.Context, userID int64, days int, paymentID string) (*models.Subscription, error)
}

type Invoicer interface {
	SendInvoice(ctx context.Context, bot service.BotAPI, chatID int64) error
}

type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (telegram.BroadcastReport, error)
}

// Deps are the collaborators behind the HTTP routes.
type Deps struct {
	Analysis    Analyzer
	Plans       Planner
	Posts       PostWriter
	Ledger      Ledger
	Payments    Invoicer
	Broadcaster Broadcaster
	Bot         service.BotAPI
	// Metrics is optional.
	Metrics interface {
		Handler() http.Handler
		Middleware(next http.Handler) http.Handler
	}
}

type Options struct {
	Addr            string
	AdminUsername   string
	AdminPassword   string
	AllowedOrigins  string
	RateLimitPerMin int
}

type Server struct {
	opts   Options
	deps   Deps
	log    *slog.Logger
	router *chi.Mux
}

func NewServer(opts Options, deps Deps, log *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseOrigins(opts.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", userIDHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{opts: opts, deps: deps, log: log, router: r}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(ur chi.Router) {
		if opts.RateLimitPerMin > 0 {
			ur.Use(httprate.LimitByIP(opts.RateLimitPerMin, time.Minute))
		}
		ur.Use(requireTelegramUser)
		ur.Post("/analyze", s.handleAnalyze)
		ur.Get("/analysis", s.handleGetAnalysis)
		ur.Post("/generate-plan", s.handleGeneratePlan)
		ur.Get("/ideas", s.handleListIdeas)
		ur.Delete("/ideas/{id}", s.handleDeleteIdea)
		ur.Post("/generate-post-details", s.handleGeneratePost)
		ur.Get("/posts", s.handleListPosts)
		ur.Get("/subscription/status", s.handleSubscriptionStatus)
		ur.Post("/subscription/invoice", s.handleSubscriptionInvoice)
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(basicAuth(opts.AdminUsername, opts.AdminPassword))
		ar.Post("/broadcast", s.handleBroadcast)
		ar.Post("/subscriptions", s.handleGrantSubscription)
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Post generation may walk both providers.
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func parseOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
