package backend

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/redis/go-redis/v9"

	"kvconsole/internal/apperr"
)

// Classify tags a client error. Error replies from the backend are
// BackendOperationFailed; failures of the connection itself, including
// deadlines, are TransportLost. A cancelled caller is neither.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var replyErr redis.Error
	switch {
	case errors.As(err, &replyErr):
		return apperr.Wrap(apperr.KindBackendOperationFailed, op, "backend returned an error", err)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.KindInternal, op, "request cancelled", err)
	case IsTransportError(err):
		return apperr.Wrap(apperr.KindTransportLost, op, "connection lost", err)
	default:
		return apperr.Wrap(apperr.KindBackendOperationFailed, op, "backend operation failed", err)
	}
}

// IsTransportError reports whether err means the handle is no longer usable.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsTimeout reports whether err is an expired deadline rather than a broken
// connection. The client drops the timed-out socket and redials on the next
// command.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
