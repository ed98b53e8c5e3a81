// Package casconfig opens one or more casregistry backends from
// configuration, so the content store can be chosen at runtime.
//
// Callers still link the backends they want via blank imports.
package casconfig

import (
	"github.com/spf13/viper"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
)

const (
	WriteFirst = "first"
	WriteAll   = "all"
)

// Config describes the content store.
//
// WritePolicy values:
//   - "first" (default): write only to the first backend; reads fall back in order
//   - "all": write to all backends and require CID equality (see storage.ReplicatingCAS)
//
// ReadAttempts bounds how many backends a read may try; 0 tries all.
//
// Example (TOML):
//
//	[storage]
//	write_policy = "first"
//	read_attempts = 2
//
//	[[storage.backends]]
//	name = "pinata"
//	config = { pinata-jwt = "..." }
//
//	[[storage.backends]]
//	name = "gateway"
//	id = "public"
//	config = { gateway-url = "https://ipfs.io" }
type Config struct {
	WritePolicy  string          `mapstructure:"write_policy" json:"write_policy,omitempty"`
	ReadAttempts int             `mapstructure:"read_attempts" json:"read_attempts,omitempty"`
	Backends     []BackendConfig `mapstructure:"backends" json:"backends"`
}

type BackendConfig struct {
	// Name is the casregistry backend name to open (e.g. "pinata", "localfs").
	Name string `mapstructure:"name" json:"name"`
	// ID is an optional stable alias used for identification and per-backend CID maps.
	// If empty, Name is used.
	ID     string            `mapstructure:"id" json:"id,omitempty"`
	Config map[string]string `mapstructure:"config" json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// LoadFile reads a standalone store config (JSON, TOML or YAML by extension).
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.Input("casconfig: empty config path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, errors.WrapKind(errors.KindInput, "casconfig: read "+path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.WrapKind(errors.KindInput, "casconfig: decode "+path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.Input("casconfig: at least one backend is required")
	}
	if c.ReadAttempts < 0 {
		return errors.Input("casconfig: read_attempts must be >= 0")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.Input("casconfig: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return errors.Input("casconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return errors.Input("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens a CAS per config.
//
// If preferredBackend is non-empty, backends are reordered so preferredBackend
// is first (and thus used for writes under WriteFirst).
func (c Config) Open(usage casregistry.Usage, preferredBackend string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferredBackend != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferredBackend || ordered[i].ID == preferredBackend {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, errors.Input("casconfig: preferred backend %q not found in config", preferredBackend)
		}
		b := ordered[idx]
		copy(ordered[1:idx+1], ordered[0:idx])
		ordered[0] = b
	}

	named := make([]storage.NamedCAS, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, b := range ordered {
		cas, closeFn, err := casregistry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, errors.Wrapf(err, "casconfig: open %q", b.id())
		}
		named = append(named, storage.NamedCAS{Name: b.id(), CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}

	if c.WritePolicy == WriteAll {
		return storage.ReplicatingCAS{Backends: named}, closeAll, nil
	}
	adapters := make([]storage.CAS, 0, len(named))
	for _, n := range named {
		adapters = append(adapters, n.CAS)
	}
	return storage.MultiCAS{Adapters: adapters, MaxAttempts: c.ReadAttempts}, closeAll, nil
}
