package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage/casconfig"
)

// EnvPrefix prefixes every environment override, e.g. DOCANCHOR_SERVER_ADDR.
const EnvPrefix = "DOCANCHOR"

// FileName is the config file searched for when no path is given.
const FileName = "docanchor.toml"

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)
	return v
}

// Load reads path (TOML), or the first docanchor.toml found in the working
// directory or ~/.docanchor when path is empty. A missing search-path file is
// not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapKind(errors.KindInput, "read config "+path, err)
		}
	} else if found := findConfig(); found != "" {
		v.SetConfigFile(found)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapKind(errors.KindInput, "read config "+found, err)
		}
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadWithViper unmarshals an already prepared viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapKind(errors.KindInput, "decode config", err)
	}
	if len(cfg.Storage.Backends) == 0 {
		cfg.Storage.Backends = []casconfig.BackendConfig{{Name: "memory"}}
	}
	if jwt := v.GetString("pinata.jwt"); jwt != "" {
		for i := range cfg.Storage.Backends {
			b := &cfg.Storage.Backends[i]
			if b.Name != "pinata" || b.Config["pinata-jwt"] != "" {
				continue
			}
			if b.Config == nil {
				b.Config = map[string]string{}
			}
			b.Config["pinata-jwt"] = jwt
		}
	}
	return &cfg, nil
}

func findConfig() string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".docanchor"))
	}
	for _, d := range dirs {
		p := filepath.Join(d, FileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
