package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketledger-backend/api/controllers"
	changerequestcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/changerequests"
	entrycontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/entries"
	confirmationcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/paymentconfirmations"
	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/internal/changerequests"
	"github.com/angelmondragon/marketledger-backend/internal/entries"
	"github.com/angelmondragon/marketledger-backend/internal/paymentconfirmations"
	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketledger-backend/pkg/redis"
)

// Deps carries everything the router mounts.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          pkgredis.Pinger
	Idempotency    pkgredis.IdempotencyStore
	Gatherer       prometheus.Gatherer
	Entries        entries.Service
	ChangeRequests changerequests.Service
	Confirmations  paymentconfirmations.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessChecks(deps)))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, cfg.Workflow.IdempotencyTTL, logg))

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", entrycontrollers.List(deps.Entries, logg))
			r.Post("/", entrycontrollers.Create(deps.Entries, logg))
			r.Patch("/{entryId}", entrycontrollers.Update(deps.Entries, logg))
			r.Delete("/{entryId}", entrycontrollers.Delete(deps.Entries, logg))
		})

		r.Route("/change-requests", func(r chi.Router) {
			r.Get("/pending", changerequestcontrollers.Pending(deps.ChangeRequests, logg))
			r.Post("/", changerequestcontrollers.Create(deps.ChangeRequests, logg))
			r.Get("/{requestId}", changerequestcontrollers.Detail(deps.ChangeRequests, logg))
			r.Post("/{requestId}/approve", changerequestcontrollers.Approve(deps.ChangeRequests, logg))
			r.Post("/{requestId}/reject", changerequestcontrollers.Reject(deps.ChangeRequests, logg))
		})

		r.Route("/payment-confirmations", func(r chi.Router) {
			r.Get("/pending", confirmationcontrollers.Pending(deps.Confirmations, logg))
			r.Post("/", confirmationcontrollers.Create(deps.Confirmations, logg))
			r.Post("/{confirmationId}/approve", confirmationcontrollers.Approve(deps.Confirmations, logg))
			r.Post("/{confirmationId}/reject", confirmationcontrollers.Reject(deps.Confirmations, logg))
		})
	})

	return r
}

func readinessChecks(deps Deps) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	return checks
}
