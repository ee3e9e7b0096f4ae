package vault

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"kvconsole/internal/crypto"
)

// Medium stores opaque blobs. Get reports a missing key as ok=false.
type Medium interface {
	Put(key string, blob []byte) error
	Get(key string) (blob []byte, ok bool, err error)
	Delete(key string) error
	Close() error
}

// SealedStore encrypts every secret before it reaches its medium.
type SealedStore struct {
	sealer *crypto.Sealer
	medium Medium
	log    zerolog.Logger
}

func NewSealedStore(sealer *crypto.Sealer, medium Medium, log zerolog.Logger) *SealedStore {
	return &SealedStore{
		sealer: sealer,
		medium: medium,
		log:    log.With().Str("component", "vault").Logger(),
	}
}

func (st *SealedStore) Store(sessionID string, secret Secret) {
	blob, err := st.seal(sessionID, secret)
	if err == nil {
		err = st.medium.Put(sessionID, blob)
	}
	if err != nil {
		// Do not leave an older secret behind the failed write.
		_ = st.medium.Delete(sessionID)
		st.log.Warn().Err(err).Str("connection_id", sessionID).Msg("secret not stored")
	}
}

func (st *SealedStore) seal(sessionID string, secret Secret) ([]byte, error) {
	plaintext, err := json.Marshal(secret)
	if err != nil {
		return nil, err
	}
	return st.sealer.Seal(plaintext, []byte(sessionID))
}

func (st *SealedStore) Retrieve(sessionID string) (Secret, bool) {
	blob, ok, err := st.medium.Get(sessionID)
	if err != nil {
		st.log.Warn().Err(err).Str("connection_id", sessionID).Msg("secret read failed")
		return Secret{}, false
	}
	if !ok {
		return Secret{}, false
	}

	plaintext, err := st.sealer.Open(blob, []byte(sessionID))
	if err != nil {
		st.log.Debug().Err(err).Str("connection_id", sessionID).Msg("secret unreadable")
		return Secret{}, false
	}

	var secret Secret
	if err := json.Unmarshal(plaintext, &secret); err != nil {
		st.log.Debug().Err(err).Str("connection_id", sessionID).Msg("secret undecodable")
		return Secret{}, false
	}
	return secret, true
}

func (st *SealedStore) Remove(sessionID string) {
	if err := st.medium.Delete(sessionID); err != nil {
		st.log.Warn().Err(err).Str("connection_id", sessionID).Msg("secret removal failed")
	}
}

func (st *SealedStore) Close() error {
	return st.medium.Close()
}

// blobMap is the in-process Medium.
type blobMap struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func newBlobMap() *blobMap {
	return &blobMap{blobs: make(map[string][]byte)}
}

func (m *blobMap) Put(key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = blob
	return nil
}

func (m *blobMap) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	return blob, ok, nil
}

func (m *blobMap) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *blobMap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs = make(map[string][]byte)
	return nil
}
