package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type RouterConfig struct {
	Appointments *AppointmentHandler
	Rules        *RuleHandler
	Schedule     *ScheduleHandler
	Exports      *ExportHandler
	// Uploads serves locally stored images under /uploads/. Nil when images live in S3.
	Uploads http.Handler
	// Authenticate guards every route except /healthz and /uploads/.
	Authenticate   func(http.Handler) http.Handler
	AllowedOrigins []string
	Middleware     []func(http.Handler) http.Handler
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet, http.MethodHead)

	if cfg.Uploads != nil {
		router.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", cfg.Uploads)).Methods(http.MethodGet, http.MethodHead)
	}

	api := router.NewRoute().Subrouter()
	if cfg.Authenticate != nil {
		api.Use(cfg.Authenticate)
	}

	if cfg.Appointments != nil {
		api.HandleFunc("/appointments", cfg.Appointments.List).Methods(http.MethodGet)
		api.HandleFunc("/appointments", cfg.Appointments.Create).Methods(http.MethodPost)
		api.HandleFunc("/appointments/{id}", cfg.Appointments.Get).Methods(http.MethodGet)
		api.HandleFunc("/appointments/{id}", cfg.Appointments.Delete).Methods(http.MethodDelete)
		api.HandleFunc("/appointments/{id}/status", cfg.Appointments.SetStatus).Methods(http.MethodPut, http.MethodPatch)
		api.HandleFunc("/images/{id}", cfg.Appointments.Image).Methods(http.MethodGet)
	}

	if cfg.Rules != nil {
		api.HandleFunc("/availability/rules", cfg.Rules.List).Methods(http.MethodGet)
		api.HandleFunc("/availability/rules", cfg.Rules.Create).Methods(http.MethodPost)
		api.HandleFunc("/availability/rules/{id}", cfg.Rules.Update).Methods(http.MethodPut, http.MethodPatch)
		api.HandleFunc("/availability/rules/{id}", cfg.Rules.Delete).Methods(http.MethodDelete)
	}

	if cfg.Schedule != nil {
		api.HandleFunc("/schedule/{date}", cfg.Schedule.Day).Methods(http.MethodGet)
	}

	if cfg.Exports != nil {
		api.HandleFunc("/calendar.ics", cfg.Exports.Calendar).Methods(http.MethodGet)
		api.HandleFunc("/exports/appointments.xlsx", cfg.Exports.Workbook).Methods(http.MethodGet)
	}

	var handler http.Handler = router
	if len(cfg.AllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		)(handler)
	}
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger: defaultLogger(cfg.Logger)}))(handler)
}
