package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Lavavarshney/Library-Management-System/api/controllers"
	"github.com/Lavavarshney/Library-Management-System/api/middleware"
	"github.com/Lavavarshney/Library-Management-System/internal/catalog"
	"github.com/Lavavarshney/Library-Management-System/internal/loans"
	"github.com/Lavavarshney/Library-Management-System/internal/notifications"
	"github.com/Lavavarshney/Library-Management-System/pkg/config"
	"github.com/Lavavarshney/Library-Management-System/pkg/db"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/pubsub"
	"github.com/Lavavarshney/Library-Management-System/pkg/redis"
)

// Deps carries everything the HTTP surface is built from. Redis, PubSub and
// Gatherer are optional.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      *redis.Client
	PubSub     *pubsub.Client
	Gatherer   prometheus.Gatherer
	Catalog    catalog.Service
	Loans      loans.Service
	Dispatcher *notifications.Dispatcher
}

// NewWorkerRouter serves only health and metrics, for processes without the
// loan API. Catalog, Loans and Dispatcher are ignored.
func NewWorkerRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
	)
	mountOps(r, deps)
	return r
}

func mountOps(r chi.Router, deps Deps) {
	env := deps.Config.App.Env
	readiness := map[string]controllers.Pinger{"database": deps.DB}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}
	if deps.PubSub != nil {
		readiness["pubsub"] = deps.PubSub
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(env))
		r.Get("/ready", controllers.HealthReady(env, deps.Logger, readiness))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	mountOps(r, deps)

	idempotent := func(next http.Handler) http.Handler { return next }
	if cfg.FeatureFlags.Idempotency && deps.Redis != nil {
		idempotent = middleware.Idempotency(deps.Redis, cfg.HTTP.IdempotencyTTL, logg)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(idempotent).Post("/items", controllers.CreateItem(deps.Catalog, logg))
		r.Get("/items", controllers.ListItems(deps.Catalog, logg))
		r.Get("/items/{itemId}", controllers.GetItem(deps.Catalog, logg))

		r.With(idempotent).Post("/patrons", controllers.CreatePatron(deps.Catalog, logg))
		r.Get("/patrons", controllers.ListPatrons(deps.Catalog, logg))
		r.Get("/patrons/{patronId}", controllers.GetPatron(deps.Catalog, logg))
		r.Get("/patrons/{patronId}/notifications",
			controllers.StreamNotifications(deps.Dispatcher, cfg.Notifications.StreamKeepAlive, logg))

		r.With(idempotent).Post("/loans", controllers.IssueLoan(deps.Loans, logg))
		r.Get("/loans", controllers.ListLoans(deps.Loans, logg))
		r.Get("/loans/overdue", controllers.ListOverdueLoans(deps.Loans, logg))
		r.Get("/loans/{loanId}", controllers.GetLoan(deps.Loans, logg))
		r.With(idempotent).Post("/loans/{loanId}/return", controllers.ReturnLoan(deps.Loans, logg))
	})

	return r
}
