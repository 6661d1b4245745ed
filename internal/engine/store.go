// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"sync"

	"github.com/vk/loomci/internal/run"
)

// runStore keeps every run started by the engine, in start order. It is
// ephemeral; restarting the daemon forgets history.
type runStore struct {
	mu    sync.RWMutex
	byID  map[string]*run.Run
	order []string
}

func newRunStore() *runStore {
	return &runStore{byID: make(map[string]*run.Run)}
}

func (s *runStore) add(r *run.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = r
	s.order = append(s.order, r.ID)
}

func (s *runStore) get(id string) (*run.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	return r, ok
}

func (s *runStore) all() []*run.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*run.Run, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}
