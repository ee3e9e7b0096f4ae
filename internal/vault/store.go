// Package vault keeps connection credentials apart from the session registry.
package vault

// Secret is the credential material of one session.
type Secret struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (s Secret) IsZero() bool {
	return s.Username == "" && s.Password == ""
}

// String keeps credentials out of formatted output.
func (s Secret) String() string {
	return "vault.Secret{redacted}"
}

func (s Secret) GoString() string {
	return s.String()
}

// SecretStore holds secrets keyed by session id. Store never reports an
// error: a store that cannot persist a secret keeps nothing. Retrieve treats
// unreadable entries the same as missing ones.
type SecretStore interface {
	Store(sessionID string, secret Secret)
	Retrieve(sessionID string) (Secret, bool)
	Remove(sessionID string)
	Close() error
}
