package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"diagnostics/internal/logger"
	"diagnostics/internal/service"
	"diagnostics/internal/transport/rest/handler"
	"diagnostics/internal/transport/rest/middleware"
	"diagnostics/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService     *service.AuthService
	Engine          handler.Engine
	ResponseService handler.AnswerSubmitter
	StatusService   handler.StatusReader
	WSHub           *ws.Hub
	AllowOrigins    string
	Log             *logger.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	diagnosticHandler := handler.NewDiagnosticHandler(c.Engine, c.ResponseService, c.StatusService, c.Log)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.Log)
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowOrigins))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws/diagnostics", wsHandler.StudentWS).Methods("GET")

	// Student routes (require student auth)
	studentRoutes := v1.PathPrefix("/diagnostics").Subrouter()
	studentRoutes.Use(authMW.RequireStudent)

	studentRoutes.HandleFunc("/initialize", diagnosticHandler.Initialize).Methods("POST", "OPTIONS")
	studentRoutes.HandleFunc("/status", diagnosticHandler.Status).Methods("GET", "OPTIONS")
	studentRoutes.HandleFunc("/sessions/{sessionId}/question", diagnosticHandler.CurrentQuestion).Methods("GET", "OPTIONS")
	studentRoutes.HandleFunc("/sessions/{sessionId}/answers", diagnosticHandler.SubmitAnswer).Methods("POST", "OPTIONS")
	studentRoutes.HandleFunc("/sessions/{sessionId}/abandon", diagnosticHandler.Abandon).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
