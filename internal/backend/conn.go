// Package backend wraps a live Redis client handle with the console's
// restricted shell and key browser operations.
package backend

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"kvconsole/internal/apperr"
)

// Client is the part of a go-redis client a Conn needs. *redis.Client
// satisfies it.
type Client interface {
	redis.Cmdable
	Do(ctx context.Context, args ...any) *redis.Cmd
	Close() error
}

// Conn is one session's backend handle. Calls are not serialised; concurrent
// commands share the underlying client.
type Conn struct {
	client Client
}

func NewConn(client Client) *Conn {
	return &Conn{client: client}
}

func (c *Conn) Client() Client {
	return c.client
}

// Ping returns the backend's raw liveness reply.
func (c *Conn) Ping(ctx context.Context) (string, error) {
	return c.client.Ping(ctx).Result()
}

func (c *Conn) Close() error {
	return c.client.Close()
}

// Exec runs one command. Blocked commands are rejected before dispatch. A
// command that outlives ctx fails on its own and leaves the session usable.
func (c *Conn) Exec(ctx context.Context, argv []string) (Reply, error) {
	const op = "backend.Exec"

	if len(argv) == 0 || argv[0] == "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, "command is required")
	}
	if IsBlocked(argv[0]) {
		name := strings.ToLower(strings.TrimSpace(argv[0]))
		return nil, apperr.New(apperr.KindCommandRejected, op, "command '"+name+"' is not allowed for security reasons")
	}

	args := make([]any, len(argv))
	for i, a := range argv {
		args[i] = a
	}

	val, err := c.client.Do(ctx, args...).Result()
	if errors.Is(err, redis.Nil) {
		return Null{}, nil
	}
	if err != nil {
		if IsTimeout(err) {
			return nil, apperr.Wrap(apperr.KindBackendOperationFailed, op, "command timed out", err)
		}
		return nil, Classify(op, err)
	}
	return FromValue(val), nil
}
