package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fastdata/cepbridge/common/middleware"
	"github.com/fastdata/cepbridge/internal/handlers"
)

// NewRouter constructs a ServeMux with the admin API routes registered.
func NewRouter(h *handlers.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	// Event sinks
	mux.HandleFunc("/sinks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListSinks(w, r)
		case http.MethodPost:
			h.CreateSink(w, r)
		case http.MethodDelete:
			h.DeleteSink(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/sinks/enable", h.EnableSink)
	mux.HandleFunc("/sinks/disable", h.DisableSink)

	// Monitored attributes
	mux.HandleFunc("/attributes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListAttributes(w, r)
		case http.MethodPost:
			h.RegisterAttribute(w, r)
		case http.MethodDelete:
			h.UnregisterAttribute(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/attributes/activate", h.ActivateAttribute)
	mux.HandleFunc("/attributes/lookup", h.LookupAttribute)

	// NGSI context broker notifications
	mux.HandleFunc("/ngsi/notify", h.NotifyContext)

	return middleware.RequestID(middleware.AccessLog(logger)(mux))
}
