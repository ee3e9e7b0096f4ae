package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"kvconsole/internal/apperr"
	"kvconsole/internal/audit"
	"kvconsole/internal/backend"
	"kvconsole/internal/console"
	"kvconsole/internal/constants"
	"kvconsole/internal/lifecycle"
	"kvconsole/internal/security"
)

type envelope map[string]any

type updateKeyRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// cliRequest accepts the session id under either spelling.
type cliRequest struct {
	Command         string `json:"command"`
	ConnectionID    string `json:"connectionId"`
	ConnectionIDAlt string `json:"connection_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	evt := s.log.Debug()
	if status >= http.StatusInternalServerError {
		evt = s.log.Warn()
	}
	evt.Err(err).
		Str("kind", string(kind)).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")

	writeJSON(w, status, envelope{"success": false, "message": apperr.Message(err)})
}

// decode reads a JSON body into v. It writes the error response itself and
// reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, envelope{"success": false, "message": constants.MsgBodyTooLarge})
			return false
		}
		s.writeError(w, r, apperr.New(apperr.KindInvalidInput, "server.decode", constants.MsgInvalidJSON))
		return false
	}
	return true
}

func connectionID(r *http.Request) string {
	return r.URL.Query().Get("connection_id")
}

func keyParam(r *http.Request) string {
	raw := chi.URLParam(r, "key")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		"status":          "ok",
		"sessions":        s.reg.Len(),
		"history_entries": s.history.Len(),
		"stream_clients":  s.dashboard.Clients(),
	})
}

func (s *Server) HandleConnect(w http.ResponseWriter, r *http.Request) {
	ip := s.proxies.ClientIP(r)
	if !s.brute.Check(ip) {
		writeJSON(w, http.StatusTooManyRequests, envelope{"success": false, "message": constants.MsgTooManyFailures})
		return
	}

	var req lifecycle.Request
	if !s.decode(w, r, &req) {
		return
	}

	session, err := s.svc.Connect(r.Context(), req, audit.OriginFromRequest(r))
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindInvalidInput, apperr.KindInvalidConnectionString:
		default:
			s.brute.RecordFailure(ip)
		}
		s.writeError(w, r, err)
		return
	}
	s.brute.RecordSuccess(ip)

	s.log.Info().
		Str("connection_id", session.ID).
		Str("target", session.Descriptor.Address()).
		Bool("tls", session.Descriptor.TLS).
		Msg("✅ session opened")

	writeJSON(w, http.StatusOK, envelope{
		"success":       true,
		"connection_id": session.ID,
		"message":       console.ConnectedMessage(session.Descriptor),
		"info":          session.Descriptor,
	})
}

// HandleListConnections lists session ids plus one-line summaries.
func (s *Server) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	ids := s.svc.ConnectionIDs()
	writeJSON(w, http.StatusOK, envelope{
		"success":     true,
		"connections": ids,
		"count":       len(ids),
		"debug":       s.svc.Summaries(),
	})
}

func (s *Server) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := connectionID(r)
	if err := s.svc.Disconnect(id, audit.OriginFromRequest(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info().Str("connection_id", id).Msg("session closed by operator")
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Disconnected"})
}

func (s *Server) HandleActiveConnections(w http.ResponseWriter, r *http.Request) {
	ids := s.svc.ConnectionIDs()
	writeJSON(w, http.StatusOK, envelope{
		"success":     true,
		"connections": ids,
		"count":       len(ids),
	})
}

func (s *Server) HandleConnectionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.ConnectionInfo(connectionID(r), audit.OriginFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "info": info})
}

// HandleHistory answers with the bare entry list, most recent first.
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.History(connectionID(r), audit.OriginFromRequest(r)))
}

func (s *Server) HandleHistoryStream(w http.ResponseWriter, r *http.Request) {
	if id := connectionID(r); id != "" && !security.ValidateConnectionID(id) {
		s.writeError(w, r, apperr.New(apperr.KindInvalidInput, "server.HandleHistoryStream", constants.MsgInvalidConnectionID))
		return
	}

	ip := s.proxies.ClientIP(r)
	if !s.streams.TryConnect(ip) {
		writeJSON(w, http.StatusTooManyRequests, envelope{"success": false, "message": constants.MsgStreamLimitExceeded})
		return
	}
	defer s.streams.Disconnect(ip)

	s.dashboard.ServeHTTP(w, r)
}

func (s *Server) HandleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.svc.Keys(r.Context(), connectionID(r), r.URL.Query().Get("pattern"), audit.OriginFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "keys": keys})
}

func (s *Server) HandleGetKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	if key == "" {
		s.writeError(w, r, apperr.New(apperr.KindInvalidInput, "server.HandleGetKey", constants.MsgKeyRequired))
		return
	}

	kv, err := s.svc.GetKey(r.Context(), connectionID(r), key, audit.OriginFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"key":     kv.Key,
		"type":    kv.Type,
		"data":    kv.Data,
	})
}

func (s *Server) HandleUpdateKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	if key == "" {
		s.writeError(w, r, apperr.New(apperr.KindInvalidInput, "server.HandleUpdateKey", constants.MsgKeyRequired))
		return
	}

	var req updateKeyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.UpdateKey(r.Context(), connectionID(r), key, req.Type, req.Data, audit.OriginFromRequest(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Key updated successfully"})
}

func (s *Server) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	if key == "" {
		s.writeError(w, r, apperr.New(apperr.KindInvalidInput, "server.HandleDeleteKey", constants.MsgKeyRequired))
		return
	}

	if err := s.svc.DeleteKey(r.Context(), connectionID(r), key, audit.OriginFromRequest(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Key deleted successfully"})
}

// HandleCLI runs one restricted shell line. The result is the display form
// of the reply; text is its redis-cli rendering.
func (s *Server) HandleCLI(w http.ResponseWriter, r *http.Request) {
	var req cliRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := req.ConnectionID
	if id == "" {
		id = req.ConnectionIDAlt
	}

	reply, err := s.svc.Exec(r.Context(), id, req.Command, audit.OriginFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"result":  backend.Display(reply),
		"text":    reply.Text(),
	})
}
