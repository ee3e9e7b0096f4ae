package vault

import (
	"sync"
)

// MemoryStore keeps secrets in plain process memory.
type MemoryStore struct {
	secrets sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (st *MemoryStore) Store(sessionID string, secret Secret) {
	st.secrets.Store(sessionID, secret)
}

func (st *MemoryStore) Retrieve(sessionID string) (Secret, bool) {
	val, ok := st.secrets.Load(sessionID)
	if !ok {
		return Secret{}, false
	}
	return val.(Secret), true
}

func (st *MemoryStore) Remove(sessionID string) {
	st.secrets.Delete(sessionID)
}

func (st *MemoryStore) Close() error {
	st.secrets.Clear()
	return nil
}
