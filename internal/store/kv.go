package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("not found")

// KV is the state store used for consent records and session bookkeeping.
// Get returns ErrNotFound for absent keys; Delete of an absent key is not an error.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Provider hands out the KV scoped to one installation directory.
type Provider interface {
	For(installDir string) KV
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(installDir string) KV

func (f ProviderFunc) For(installDir string) KV { return f(installDir) }

// Shared scopes a single backing KV per installation by key prefix.
func Shared(kv KV) Provider {
	return ProviderFunc(func(installDir string) KV {
		return WithPrefix(kv, installDir+":")
	})
}

// Files keeps each installation's records as marker files inside the installation directory.
func Files() Provider {
	return ProviderFunc(func(installDir string) KV {
		return NewFileStore(installDir, "claude-yolo")
	})
}

// Open returns the Provider for backend ("file", "sqlite" or "memory") plus a close func.
// path is the sqlite database location; empty means ~/.yolo/state.db.
func Open(backend, path string) (Provider, func() error, error) {
	noop := func() error { return nil }
	switch backend {
	case "", "file":
		return Files(), noop, nil
	case "sqlite":
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, fmt.Errorf("resolve home dir: %w", err)
			}
			path = filepath.Join(home, ".yolo", "state.db")
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return Shared(s), s.Close, nil
	case "memory":
		return Shared(NewMemory()), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// Memory is an in-process KV, used by tests and the "memory" backend.
type Memory struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemory() *Memory {
	return &Memory{m: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
	return nil
}

type prefixed struct {
	kv     KV
	prefix string
}

// WithPrefix namespaces every key of kv with prefix.
func WithPrefix(kv KV, prefix string) KV {
	return &prefixed{kv: kv, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, error) {
	return p.kv.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.kv.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.kv.Delete(ctx, p.prefix+key)
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
