package lifecycle

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"kvconsole/internal/apperr"
	"kvconsole/internal/constants"
)

// Request is an untrusted connection request, either structured fields or a
// connection URL. A non-empty URL wins.
type Request struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DB       int    `json:"db"`
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	TLS      bool   `json:"tls"`
	URL      string `json:"url"`
}

// Target is a validated connection target.
type Target struct {
	Host     string
	Port     int
	DB       int
	Username string
	Password string
	TLS      bool
	Name     string
}

// Addr is the dial address. IPv6 hosts are bracketed.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Address returns host:port/db, the default display name.
func (t Target) Address() string {
	return t.Addr() + "/" + strconv.Itoa(t.DB)
}

// ParseURL parses redis://[user[:password]@]host[:port][/db]. rediss and any
// host under a managed domain require TLS; managed hosts read the db index
// from the first path segment only.
func ParseURL(raw string, managedDomains []string) (Target, error) {
	const op = "lifecycle.ParseURL"
	invalid := func(reason string) error {
		return apperr.New(apperr.KindInvalidConnectionString, op, constants.MsgInvalidURL+": "+reason)
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Target{}, invalid("malformed URL")
	}

	t := Target{Host: "localhost", Port: constants.DefaultRedisPort}

	switch strings.ToLower(u.Scheme) {
	case "redis":
	case "rediss":
		t.TLS = true
	default:
		return Target{}, invalid("scheme must be redis:// or rediss://")
	}

	if h := u.Hostname(); h != "" {
		t.Host = h
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < constants.MinPort || port > constants.MaxPort {
			return Target{}, invalid("port out of range")
		}
		t.Port = port
	}

	managed := isManaged(t.Host, managedDomains)
	if managed {
		t.TLS = true
	}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		if managed {
			path, _, _ = strings.Cut(path, "/")
		}
		if db, ok := leadingInt(path); ok {
			if db < 0 {
				return Target{}, invalid("database index must not be negative")
			}
			t.DB = db
		}
	}

	if u.User != nil {
		t.Username = u.User.Username()
		t.Password, _ = u.User.Password()
	}
	return t, nil
}

// FromFields validates a structured request.
func FromFields(req Request, managedDomains []string) (Target, error) {
	const op = "lifecycle.FromFields"

	host := strings.TrimSpace(req.Host)
	if host == "" {
		return Target{}, apperr.New(apperr.KindInvalidInput, op, constants.MsgHostRequired)
	}

	port := req.Port
	if port == 0 {
		port = constants.DefaultRedisPort
	}
	if port < constants.MinPort || port > constants.MaxPort {
		return Target{}, apperr.New(apperr.KindInvalidInput, op, fmt.Sprintf("port must be between %d and %d", constants.MinPort, constants.MaxPort))
	}
	if req.DB < 0 {
		return Target{}, apperr.New(apperr.KindInvalidInput, op, "database index must not be negative")
	}

	return Target{
		Host:     host,
		Port:     port,
		DB:       req.DB,
		Username: req.Username,
		Password: req.Password,
		TLS:      req.TLS || isManaged(host, managedDomains),
	}, nil
}

// Resolve turns a request into a target and fills in the display name.
func Resolve(req Request, managedDomains []string) (Target, error) {
	var (
		t   Target
		err error
	)
	if strings.TrimSpace(req.URL) != "" {
		t, err = ParseURL(req.URL, managedDomains)
	} else {
		t, err = FromFields(req, managedDomains)
	}
	if err != nil {
		return Target{}, err
	}

	t.Name = strings.TrimSpace(req.Name)
	if t.Name == "" {
		t.Name = t.Address()
	}
	return t, nil
}

func isManaged(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		if d != "" && strings.Contains(host, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// leadingInt parses the optionally signed digits at the start of s.
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
