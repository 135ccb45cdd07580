package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[string]func(ProviderEntry) (stt.Provider, error)
	audio map[string]func(ProviderEntry) (audio.Capture, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[string]func(ProviderEntry) (stt.Provider, error)),
		audio: make(map[string]func(ProviderEntry) (audio.Capture, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterAudio registers a capture backend factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Capture, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateSTT instantiates the STT provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt %q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateAudio instantiates the capture backend named by entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Capture, error) {
	r.mu.RLock()
	f, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio %q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// Names returns the sorted registered names for kind ("stt" or "audio").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	switch kind {
	case "stt":
		for n := range r.stt {
			out = append(out, n)
		}
	case "audio":
		for n := range r.audio {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}
