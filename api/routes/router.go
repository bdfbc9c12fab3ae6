package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diagcenter/pcledger/api/controllers"
	"github.com/diagcenter/pcledger/api/middleware"
	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/internal/reports"
	"github.com/diagcenter/pcledger/pkg/config"
	"github.com/diagcenter/pcledger/pkg/db"
	"github.com/diagcenter/pcledger/pkg/logger"
	"github.com/diagcenter/pcledger/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       controllers.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Members     members.Service
	Ledger      ledger.Service
	Reports     reports.Service
	Now         func() time.Time
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	loc, err := cfg.Commission.Location()
	if err != nil {
		loc = time.UTC
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Actor(),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Idempotency(deps.Idempotency, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "db", Pinger: deps.DB},
			controllers.ReadinessCheck{Name: "redis", Pinger: deps.Redis},
		))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/pc", func(r chi.Router) {
		r.Get("/lookup", controllers.MemberLookup(deps.Members, logg))

		r.Route("/members", func(r chi.Router) {
			r.Post("/", controllers.MemberCreate(deps.Members, logg))
			r.Get("/", controllers.MemberList(deps.Members, logg))
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", controllers.MemberDetail(deps.Members, deps.Ledger, now, logg))
				r.Patch("/", controllers.MemberUpdate(deps.Members, logg))
				r.Delete("/", controllers.MemberDelete(deps.Members, logg))
				r.Get("/transactions", controllers.MemberTransactions(deps.Ledger, loc, logg))
				r.Get("/statement.xlsx", controllers.MemberStatementExport(deps.Reports, loc, logg))
				r.Post("/settle", controllers.MemberSettle(deps.Ledger, logg))
			})
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", controllers.TransactionCreate(deps.Ledger, logg))
			r.Get("/{number}", controllers.TransactionGet(deps.Ledger, logg))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/summary", controllers.ReportSummary(deps.Reports, deps.Members, loc, logg))
			r.Get("/dashboard", controllers.ReportDashboard(deps.Reports, now, logg))
		})
	})

	return r
}
