package violationstore

import (
	"context"
	"fmt"
	"sync"
)

type MemStore struct {
	mu   sync.Mutex
	Data map[string]UserState
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Data: make(map[string]UserState),
	}
}

func memKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func (s *MemStore) Load(ctx context.Context, guildID, userID string) (*UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.Data[memKey(guildID, userID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, guildID, userID)
	}
	return &st, nil
}

func (s *MemStore) Save(ctx context.Context, st UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Data[memKey(st.GuildID, st.UserID)] = st
	return nil
}

func (s *MemStore) Delete(ctx context.Context, guildID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Data, memKey(guildID, userID))
	return nil
}

// Number of stored records.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Data)
}
