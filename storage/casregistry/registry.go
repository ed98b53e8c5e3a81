package casregistry

import (
	"sort"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
)

// Config carries backend-specific settings. Keys mirror the CLI flag names a
// backend declares (e.g. "localfs-dir").
type Config map[string]string

// Get returns the value for key, or def when unset or blank.
func (c Config) Get(key, def string) string {
	if v, ok := c[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// Bool parses key as a boolean; "1", "true" and "yes" are true.
func (c Config) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// Option declares one config key, exposed on CLIs as a string flag.
type Option struct {
	Key   string
	Usage string
}

// Backend is a build-time plugin that can open a storage.CAS implementation.
//
// Backends typically register themselves in init():
//
//	casregistry.MustRegister(casregistry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Options     []Option

	// Open constructs the CAS from cfg. It returns an optional close function.
	Open func(cfg Config) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return errors.New("casregistry: backend name is required")
	}
	if b.Open == nil {
		return errors.Newf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return errors.Newf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return errors.Newf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags adds a string flag for every option of every backend matching
// usage. Options shared between backends are registered once.
func RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		for _, o := range b.Options {
			if fs.Lookup(o.Key) != nil {
				continue
			}
			fs.String(o.Key, "", o.Usage)
		}
	}
}

// FlagConfig collects the options of backend name that were set on fs.
func FlagConfig(fs *pflag.FlagSet, name string) Config {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	cfg := Config{}
	if !ok {
		return cfg
	}
	for _, o := range b.Options {
		f := fs.Lookup(o.Key)
		if f == nil || !f.Changed {
			continue
		}
		cfg[o.Key] = f.Value.String()
	}
	return cfg
}

// Open opens the named backend with an empty config.
func Open(name string, usage Usage) (storage.CAS, func() error, error) {
	return OpenWithConfig(name, usage, nil)
}

// OpenWithConfig opens the named backend if it exists and matches usage.
func OpenWithConfig(name string, usage Usage, cfg Config) (storage.CAS, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, errors.Input("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, errors.Input("backend %q not supported in this binary", name)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return b.Open(cfg)
}
