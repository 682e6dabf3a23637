package httpx

import (
	"encoding/json"
	"net/http"

	"payswitch/internal/config"
	"payswitch/internal/connector"
	"payswitch/internal/gateway"
	"payswitch/internal/http/handlers"
	middlewarex "payswitch/internal/http/middleware"
	"payswitch/internal/orchestrator"
	"payswitch/internal/store/repositories"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDependencies holds all dependencies for the HTTP router
type RouterDependencies struct {
	Config       config.Cfg
	Orchestrator *orchestrator.Orchestrator
	Registry     *connector.Registry
	Accounts     repositories.MerchantConnectorAccountRepository
	Intents      repositories.IntentRepository
	Snapshots    *gateway.SnapshotHolder
	Publisher    handlers.SnapshotPublisher // nil without Redis
}

// NewRouter creates the HTTP router of the switch
func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "ok",
			"connectors": deps.Registry.List(),
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middlewarex.AdminAuth(deps.Config))

		r.Get("/gateway/snapshot", handlers.GetSnapshot(deps.Snapshots))
		r.Put("/gateway/snapshot", handlers.PutSnapshot(deps.Snapshots, deps.Publisher))

		r.Post("/connector-accounts", handlers.CreateConnectorAccount(deps.Accounts, deps.Registry, deps.Config.Sec.AESKey))
		r.Get("/merchants/{merchantId}/connector-accounts", handlers.ListConnectorAccounts(deps.Accounts))
		r.Delete("/connector-accounts/{id}", handlers.DisableConnectorAccount(deps.Accounts))
	})

	p := handlers.Payments{
		Orchestrator: deps.Orchestrator,
		Accounts:     deps.Accounts,
		Intents:      deps.Intents,
		AESKey:       deps.Config.Sec.AESKey,
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewarex.ServiceAuth(deps.Config))

		r.Post("/payments", p.Authorize())
		r.Post("/payments/{paymentId}/capture", p.Capture())
		r.Post("/payments/{paymentId}/void", p.Void())
		r.Post("/payments/{paymentId}/sync", p.Sync())
		r.Post("/payments/{paymentId}/complete", p.CompleteAuthorize())
		r.Post("/payments/{paymentId}/refunds", p.Refund())
		r.Post("/payments/{paymentId}/refunds/{refundId}/sync", p.RefundSync())
		r.Post("/mandates", p.SetupMandate())
	})

	return r
}
