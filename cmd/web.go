package cmd

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	gmux "github.com/gorilla/mux"

	"github.com/hearthlab/heater-control/internal/pkg/alerting"
	"github.com/hearthlab/heater-control/internal/pkg/clients"
	"github.com/hearthlab/heater-control/internal/pkg/config"
	"github.com/hearthlab/heater-control/internal/pkg/controller"
)

const (
	post = "POST"
	get  = "GET"
)

var allowedAPIKeys []string

type WebServer struct {
	httpServer    *http.Server
	ctrl          *controller.Controller
	alerts        *alerting.Service
	serverClients clients.ServerClients
	hasPostgres   bool
}

func newWebServer(serverConfig config.ServerConfig, ctrl *controller.Controller, alerts *alerting.Service, serverClients clients.ServerClients) WebServer {
	allowedAPIKeys = serverConfig.AllowedAPIKeys
	router := gmux.NewRouter().StrictSlash(true)

	w := WebServer{
		ctrl:          ctrl,
		alerts:        alerts,
		serverClients: serverClients,
		hasPostgres:   serverConfig.PostgresURL != "",
	}

	router.Handle("/health", http.HandlerFunc(healthHandler)).Methods(get)
	router.Handle("/api/controller/health", requireAPIKey(http.HandlerFunc(w.controllerHealthHandler))).Methods(get)
	router.Handle("/api/alerts", requireAPIKey(http.HandlerFunc(w.alertsHandler))).Methods(get)
	router.Handle("/api/alerts/ack", requireAPIKey(http.HandlerFunc(w.alertAckHandler))).Methods(post)
	router.Handle("/api/report", requireAPIKey(http.HandlerFunc(w.reportHandler))).Methods(get)

	srv := &http.Server{
		Handler:      router,
		Addr:         "0.0.0.0:" + serverConfig.Port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	w.httpServer = srv
	return w
}

func requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if len(allowedAPIKeys) == 0 {
			next.ServeHTTP(w, req)
			return
		}
		key := req.Header.Get("X-API-Key")
		for _, allowed := range allowedAPIKeys {
			if key == allowed {
				next.ServeHTTP(w, req)
				return
			}
		}
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	})
}

func healthHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "version": version})
}

func (s WebServer) controllerHealthHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, s.ctrl.Health())
}

func (s WebServer) alertsHandler(w http.ResponseWriter, req *http.Request) {
	severity := alerting.Severity(req.URL.Query().Get("severity"))
	records := s.alerts.History(100, severity)
	writeJSON(w, map[string]interface{}{"alerts": records})
}

func (s WebServer) alertAckHandler(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		AlertID string `json:"alert_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.AlertID == "" {
		http.Error(w, `{"error":"alert_id is required"}`, http.StatusBadRequest)
		return
	}

	if !s.alerts.Acknowledge(payload.AlertID) {
		http.Error(w, `{"error":"alert not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"status": "acknowledged", "alert_id": payload.AlertID})
}

func (s WebServer) reportHandler(w http.ResponseWriter, req *http.Request) {
	if !s.hasPostgres {
		http.Error(w, `{"error":"persistence is not configured"}`, http.StatusNotImplemented)
		return
	}

	query := req.URL.Query()
	measurement := query.Get("measurement")
	if measurement == "" {
		measurement = "all"
	}
	page := 1
	if p := query.Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			http.Error(w, `{"error":"invalid page"}`, http.StatusBadRequest)
			return
		}
		page = parsed
	}

	readings, numPages, err := s.serverClients.Postgres.GetReadings(measurement, page)
	if err != nil {
		logger.Errorf("getting readings report: %s", err)
		http.Error(w, `{"error":"error getting report"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"readings": readings,
		"numPages": numPages,
	})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("encoding response: %s", err)
	}
}
