package identity

import (
	"context"
	"sync"
)

// Static resolves from a fixed directory. With Open set, any non-empty id verifies
// and resolves to a profile named after the id; used when no identity service is configured.
type Static struct {
	Open bool

	mu       sync.RWMutex
	profiles map[string]Profile
	failing  map[string]bool
}

func NewStatic(profiles ...Profile) *Static {
	s := &Static{profiles: make(map[string]Profile), failing: make(map[string]bool)}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return s
}

// Add registers a profile.
func (s *Static) Add(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// Fail makes lookups of id behave like an identity service error.
func (s *Static) Fail(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = true
}

func (s *Static) find(id string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing[id] {
		return Profile{}, false
	}
	if p, ok := s.profiles[id]; ok {
		return p, true
	}
	if s.Open {
		return Profile{ID: id, Username: id}, true
	}
	return Profile{}, false
}

func (s *Static) Resolve(ctx context.Context, ids []string) (map[string]Profile, error) {
	out := make(map[string]Profile)
	if CredentialFrom(ctx) == "" && !s.Open {
		return out, nil
	}
	for _, id := range Unique(ids) {
		if p, ok := s.find(id); ok {
			out[id] = p
		} else {
			out[id] = Placeholder(id)
		}
	}
	return out, nil
}

func (s *Static) Verify(ctx context.Context, ids []string) (map[string]Profile, error) {
	out := make(map[string]Profile)
	if CredentialFrom(ctx) == "" && !s.Open {
		return out, nil
	}
	for _, id := range Unique(ids) {
		if p, ok := s.find(id); ok {
			out[id] = p
		}
	}
	return out, nil
}
