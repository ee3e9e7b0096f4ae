package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"kvconsole/internal/constants"
	"kvconsole/internal/security"
)

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recovery)
	r.Use(security.SecurityHeaders)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get(constants.EndpointHealth, s.HandleHealth)

	// The history stream is a websocket; it stays outside compression.
	r.Get(constants.EndpointHistoryStream, s.HandleHistoryStream)

	r.Group(func(api chi.Router) {
		api.Use(chimw.Compress(5, "application/json"))
		api.Use(security.MaxBodySize(constants.MaxBodySize))

		api.With(s.connectRateLimit).Post(constants.EndpointConnect, s.HandleConnect)
		api.Get(constants.EndpointConnect, s.HandleListConnections)
		api.Delete(constants.EndpointConnect, s.HandleDisconnect)
		api.Get(constants.EndpointActiveConnections, s.HandleActiveConnections)
		api.Get(constants.EndpointConnectionInfo, s.HandleConnectionInfo)
		api.Get(constants.EndpointHistory, s.HandleHistory)
		api.Get(constants.EndpointKeys, s.HandleKeys)
		api.Get(constants.EndpointKey, s.HandleGetKey)
		api.Put(constants.EndpointKey, s.HandleUpdateKey)
		api.Delete(constants.EndpointKey, s.HandleDeleteKey)
		api.Post(constants.EndpointCLI, s.HandleCLI)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{"success": false, "message": "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{"success": false, "message": "Method not allowed"})
	})

	s.router = r
}
