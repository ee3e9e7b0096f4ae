// Package console implements the operator operations on top of the session
// registry. Every operation is written to the audit log, and a lost
// connection removes its session.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kvconsole/internal/apperr"
	"kvconsole/internal/audit"
	"kvconsole/internal/backend"
	"kvconsole/internal/constants"
	"kvconsole/internal/lifecycle"
	"kvconsole/internal/registry"
)

type Service struct {
	proto     *lifecycle.Protocol
	reg       *registry.Registry
	history   *audit.Log
	opTimeout time.Duration
	log       zerolog.Logger
}

func New(proto *lifecycle.Protocol, reg *registry.Registry, history *audit.Log, opTimeout time.Duration, log zerolog.Logger) *Service {
	if opTimeout <= 0 {
		opTimeout = constants.OperationTimeout
	}
	return &Service{
		proto:     proto,
		reg:       reg,
		history:   history,
		opTimeout: opTimeout,
		log:       log.With().Str("component", "console").Logger(),
	}
}

func (s *Service) Connect(ctx context.Context, req lifecycle.Request, origin *audit.Origin) (*lifecycle.Session, error) {
	session, err := s.proto.Open(ctx, req)
	if err != nil {
		target := "server"
		if t, perr := s.proto.Resolve(req); perr == nil {
			target = t.Address()
		}
		s.history.Record(constants.ActionConnect, fmt.Sprintf("Failed to connect to %s: %s", target, apperr.Message(err)), "", origin)
		return nil, err
	}

	s.history.Record(constants.ActionConnect, ConnectedMessage(session.Descriptor), session.ID, origin)
	return session, nil
}

// ConnectedMessage describes a successful connect for operators.
func ConnectedMessage(d registry.Descriptor) string {
	msg := "Connected to Redis at " + d.Address()
	if d.TLS {
		msg += " (TLS)"
	}
	return msg
}

// Disconnect closes a session at the operator's request.
func (s *Service) Disconnect(id string, origin *audit.Origin) error {
	const op = "console.Disconnect"
	if id == "" {
		return apperr.New(apperr.KindInvalidInput, op, constants.MsgConnectionIDRequired)
	}

	desc, _ := s.reg.Describe(id)
	if !s.reg.Unregister(id) {
		return apperr.New(apperr.KindSessionNotFound, op, constants.MsgInvalidConnectionID)
	}
	s.history.Record(constants.ActionDisconnect, "Disconnected from "+desc.Address(), id, origin)
	return nil
}

// SessionLost records a session the health monitor removed.
func (s *Service) SessionLost(id string, cause error) {
	s.history.Record(constants.ActionSessionLost, "Connection lost: "+cause.Error(), id, nil)
}

func (s *Service) ConnectionIDs() []string {
	return s.reg.ListIDs()
}

func (s *Service) Summaries() []string {
	return s.reg.Summaries()
}

func (s *Service) ConnectionInfo(id string, origin *audit.Origin) (registry.Info, error) {
	const op = "console.ConnectionInfo"

	s.history.Record(constants.ActionConnectionInfo, "Get connection info", id, origin)
	if id == "" {
		return registry.Info{}, apperr.New(apperr.KindInvalidInput, op, constants.MsgConnectionIDRequired)
	}
	info, ok := s.reg.Info(id)
	if !ok {
		return registry.Info{}, apperr.New(apperr.KindSessionNotFound, op, constants.MsgInvalidConnectionID)
	}
	return info, nil
}

// History records the lookup itself, then returns the log, optionally for
// one session.
func (s *Service) History(id string, origin *audit.Origin) []audit.Entry {
	s.history.Record(constants.ActionHistory, "Retrieved request history", id, origin)
	return s.history.Query(id)
}

func (s *Service) Keys(ctx context.Context, id, pattern string, origin *audit.Origin) ([]string, error) {
	conn, err := s.resolve("console.Keys", id)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	s.history.Record(constants.ActionKeys, "Fetched keys with pattern: "+pattern, id, origin)

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	keys, err := conn.Keys(ctx, pattern)
	return keys, s.check(id, err)
}

func (s *Service) GetKey(ctx context.Context, id, key string, origin *audit.Origin) (*backend.KeyValue, error) {
	conn, err := s.resolve("console.GetKey", id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	kv, err := conn.ReadKey(ctx, key)
	if err != nil {
		s.history.Record(constants.ActionGetKey, "Failed to retrieve key: "+key, id, origin)
		return nil, s.check(id, err)
	}
	s.history.Record(constants.ActionGetKey, fmt.Sprintf("Retrieved key: %s (%s)", key, kv.Type), id, origin)
	return kv, nil
}

func (s *Service) UpdateKey(ctx context.Context, id, key, typ string, data json.RawMessage, origin *audit.Origin) error {
	conn, err := s.resolve("console.UpdateKey", id)
	if err != nil {
		return err
	}
	s.history.Record(constants.ActionUpdateKey, "Updated key: "+key, id, origin)

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.check(id, conn.WriteKey(ctx, key, typ, data))
}

func (s *Service) DeleteKey(ctx context.Context, id, key string, origin *audit.Origin) error {
	conn, err := s.resolve("console.DeleteKey", id)
	if err != nil {
		return err
	}
	s.history.Record(constants.ActionDeleteKey, "Deleted key: "+key, id, origin)

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.check(id, conn.DeleteKey(ctx, key))
}

// Exec runs one shell line. Deny-listed commands are recorded but never sent.
func (s *Service) Exec(ctx context.Context, id, line string, origin *audit.Origin) (backend.Reply, error) {
	const op = "console.Exec"

	if strings.TrimSpace(line) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, constants.MsgCommandRequired)
	}
	conn, err := s.resolve(op, id)
	if err != nil {
		return nil, err
	}

	argv, err := backend.ParseCommandLine(line)
	if err != nil {
		return nil, err
	}
	s.history.Record(constants.ActionCLI, "Executed command: "+redact(argv), id, origin)

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	reply, err := conn.Exec(ctx, argv)
	return reply, s.check(id, err)
}

func (s *Service) resolve(op, id string) (*backend.Conn, error) {
	if id == "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, constants.MsgConnectionIDRequired)
	}
	conn, ok := s.reg.Resolve(id)
	if !ok {
		return nil, apperr.New(apperr.KindSessionNotFound, op, constants.MsgInvalidConnectionID)
	}
	return conn, nil
}

// check tears the session down when err says its connection is gone.
func (s *Service) check(id string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.Is(err, apperr.KindTransportLost) {
		if s.reg.Unregister(id) {
			s.log.Warn().Err(err).Str("connection_id", id).Msg("connection lost, session removed")
			s.history.Record(constants.ActionSessionLost, "Connection lost: "+apperr.Message(err), id, nil)
		}
		return err
	}
	s.log.Debug().Err(err).Str("connection_id", id).Msg("operation failed")
	return err
}

// redact hides credentials passed to AUTH and HELLO ... AUTH.
func redact(argv []string) string {
	out := make([]string, len(argv))
	copy(out, argv)

	switch strings.ToLower(out[0]) {
	case "auth":
		for i := 1; i < len(out); i++ {
			out[i] = "[redacted]"
		}
	case "hello":
		for i := 1; i < len(out); i++ {
			if strings.EqualFold(out[i], "auth") {
				for j := i + 1; j < len(out) && j <= i+2; j++ {
					out[j] = "[redacted]"
				}
				break
			}
		}
	}
	return strings.Join(out, " ")
}
