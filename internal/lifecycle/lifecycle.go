// Package lifecycle turns connection requests into registered sessions:
// parse, dial, probe, register.
package lifecycle

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kvconsole/internal/apperr"
	"kvconsole/internal/backend"
	"kvconsole/internal/config"
	"kvconsole/internal/constants"
	"kvconsole/internal/registry"
	"kvconsole/internal/vault"
)

type State int

const (
	StateRequested State = iota
	StateParsing
	StateDialing
	StateProbing
	StateRegistered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateParsing:
		return "parsing"
	case StateDialing:
		return "dialing"
	case StateProbing:
		return "probing"
	case StateRegistered:
		return "registered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DialFunc creates a client for opts. go-redis connects lazily, so the first
// command performs the actual dial.
type DialFunc func(opts *redis.Options) backend.Client

func defaultDial(opts *redis.Options) backend.Client {
	return redis.NewClient(opts)
}

// Session is what a caller gets back: never the credentials.
type Session struct {
	ID         string              `json:"connection_id"`
	Descriptor registry.Descriptor `json:"descriptor"`
}

type Protocol struct {
	cfg   config.LifecycleConfig
	reg   *registry.Registry
	dial  DialFunc
	newID func() string
	log   zerolog.Logger
}

func New(cfg config.LifecycleConfig, reg *registry.Registry, log zerolog.Logger) *Protocol {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = constants.DialTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = constants.ProbeTimeout
	}
	if cfg.ManagedTLSDomains == nil {
		cfg.ManagedTLSDomains = constants.ManagedTLSDomains
	}
	return &Protocol{
		cfg:   cfg,
		reg:   reg,
		dial:  defaultDial,
		newID: uuid.NewString,
		log:   log.With().Str("component", "lifecycle").Logger(),
	}
}

// SetDialFunc replaces the client constructor.
func (p *Protocol) SetDialFunc(dial DialFunc) {
	p.dial = dial
}

// Resolve parses req with the configured managed domains.
func (p *Protocol) Resolve(req Request) (Target, error) {
	return Resolve(req, p.cfg.ManagedTLSDomains)
}

// Open runs the full handshake. On any failure, including ctx cancellation,
// the handle it opened is closed and nothing is registered.
func (p *Protocol) Open(ctx context.Context, req Request) (*Session, error) {
	const op = "lifecycle.Open"

	id := p.newID()
	log := p.log.With().Str("connection_id", id).Logger()
	log.Debug().Stringer("state", StateRequested).Msg("connection requested")

	log.Debug().Stringer("state", StateParsing).Msg("parsing connection parameters")
	target, err := p.Resolve(req)
	if err != nil {
		log.Debug().Stringer("state", StateFailed).Err(err).Msg("connection parameters rejected")
		return nil, err
	}
	log = log.With().Str("target", target.Address()).Bool("tls", target.TLS).Logger()

	log.Debug().Stringer("state", StateDialing).Msg("dialing")
	conn := backend.NewConn(p.dial(p.options(target)))

	fail := func(err error) (*Session, error) {
		if cerr := conn.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("handle close after failed handshake")
		}
		log.Warn().Stringer("state", StateFailed).Err(err).Msg("connection failed")
		return nil, err
	}

	log.Debug().Stringer("state", StateProbing).Msg("probing")
	if err := p.probe(ctx, conn, log); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(apperr.Wrap(apperr.KindHandshakeTimeout, op, "connection attempt abandoned", err))
	}

	desc := registry.Descriptor{
		Host:        target.Host,
		Port:        target.Port,
		DB:          target.DB,
		Name:        target.Name,
		TLS:         target.TLS,
		ConnectedAt: time.Now().UTC(),
	}

	var secret *vault.Secret
	if target.Username != "" || target.Password != "" {
		secret = &vault.Secret{Username: target.Username, Password: target.Password}
	}

	if err := p.reg.Register(id, conn, desc, secret); err != nil {
		return fail(err)
	}

	log.Info().Stringer("state", StateRegistered).Msg("🔌 Connected")
	return &Session{ID: id, Descriptor: desc}, nil
}

// options builds the client settings for t. Reads carry no fixed timeout;
// the caller's deadline bounds every command.
func (p *Protocol) options(t Target) *redis.Options {
	opts := &redis.Options{
		Addr:                  t.Addr(),
		Username:              t.Username,
		Password:              t.Password,
		DB:                    t.DB,
		DialTimeout:           p.cfg.DialTimeout,
		ReadTimeout:           -1,
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
		PoolSize:              1,
	}
	if t.TLS {
		opts.TLSConfig = &tls.Config{
			ServerName:         t.Host,
			InsecureSkipVerify: p.cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}
	}
	return opts
}

// probe pings under the probe deadline, retrying once after the backoff when
// the first failure is connection-level. The deadline covers the retry.
func (p *Protocol) probe(ctx context.Context, conn *backend.Conn, log zerolog.Logger) error {
	const op = "lifecycle.probe"

	pctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	reply, err := conn.Ping(pctx)
	if err != nil && pctx.Err() == nil && backend.IsTransportError(err) {
		log.Debug().Err(err).Dur("backoff", p.cfg.RetryBackoff).Msg("probe failed, retrying")
		timer := time.NewTimer(p.cfg.RetryBackoff)
		select {
		case <-pctx.Done():
			timer.Stop()
		case <-timer.C:
			reply, err = conn.Ping(pctx)
		}
	}

	switch {
	case pctx.Err() != nil && (err != nil || reply != constants.ProbeReply):
		if errors.Is(ctx.Err(), context.Canceled) {
			return apperr.Wrap(apperr.KindHandshakeTimeout, op, "connection attempt abandoned", ctx.Err())
		}
		return apperr.Wrap(apperr.KindHandshakeTimeout, op, "connection timeout", pctx.Err())
	case err != nil:
		var replyErr redis.Error
		if errors.As(err, &replyErr) {
			return apperr.Wrap(apperr.KindBackendOperationFailed, op, "failed to connect", err)
		}
		return apperr.Wrap(apperr.KindTransportLost, op, "failed to connect", err)
	case reply != constants.ProbeReply:
		return apperr.New(apperr.KindInvalidHandshakeResponse, op, "invalid ping response from server")
	}
	return nil
}
