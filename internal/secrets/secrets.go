// Package secrets holds the per-engine secret material and the redaction
// that keeps it out of logs. Secrets flow to expressions and into step
// environments; every log sink must be wrapped by a Redactor so values
// never appear verbatim in captured output.
package secrets

import (
	"sort"
	"strings"
	"sync"
)

// envPrefix marks process environment entries that seed the store.
const envPrefix = "LOOMCI_SECRET_"

// Store is a concurrency-safe name-to-value secret map.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// FromMap seeds a store from a plain map.
func FromMap(m map[string]string) *Store {
	s := NewStore()
	for k, v := range m {
		s.Set(k, v)
	}
	return s
}

// Set adds or replaces a secret. Empty values are ignored so a blank
// config entry can never produce a redactor that censors everything.
func (s *Store) Set(name, value string) {
	if value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Get returns a secret value by name.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// All returns a copy of the full mapping for expression environments.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Values returns every secret value, longest first so the redactor
// replaces overlapping secrets before their substrings.
func (s *Store) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// LoadEnviron seeds the store from LOOMCI_SECRET_* process environment
// entries: LOOMCI_SECRET_TOKEN=abc becomes secret TOKEN.
func (s *Store) LoadEnviron(environ []string) {
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		s.Set(strings.TrimPrefix(name, envPrefix), value)
	}
}

// Redact replaces every secret value occurring in s with the mask.
func (s *Store) Redact(text string) string {
	for _, v := range s.Values() {
		text = strings.ReplaceAll(text, v, Mask)
	}
	return text
}

// Mask is what redacted secret values are replaced with.
const Mask = "***"
