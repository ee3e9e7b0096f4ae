package audit

import (
	"net"
	"net/http"
	"strings"

	"kvconsole/internal/constants"
)

const localAddress = "localhost"

// Origin is the inbound request context an entry is attributed to.
type Origin struct {
	ForwardedFor string
	RealIP       string
	Referer      string
	RemoteAddr   string
}

// OriginFromRequest captures the address headers of r. A nil request yields nil.
func OriginFromRequest(r *http.Request) *Origin {
	if r == nil {
		return nil
	}
	return &Origin{
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RealIP:       r.Header.Get("X-Real-Ip"),
		Referer:      r.Header.Get("Referer"),
		RemoteAddr:   r.RemoteAddr,
	}
}

// Address returns the first forwarded-for hop, then the real-ip header, then
// the remote host.
func (o *Origin) Address() string {
	if o == nil {
		return localAddress
	}
	if o.ForwardedFor != "" {
		if first := strings.TrimSpace(strings.Split(o.ForwardedFor, ",")[0]); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(o.RealIP); xri != "" {
		return xri
	}
	if o.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(o.RemoteAddr)
		if err != nil {
			return o.RemoteAddr
		}
		if host != "" {
			return host
		}
	}
	return localAddress
}

// External reports whether an action came from outside the console UI. The
// dashboard polling its own history counts as internal.
func (o *Origin) External(action string) bool {
	if o == nil {
		return false
	}
	if action == constants.ActionHistory && strings.Contains(o.Referer, "/dashboard") {
		return false
	}
	return true
}
