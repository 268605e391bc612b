package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/sambigeara/sadb/pkg/antireplay"
	"github.com/sambigeara/sadb/pkg/observability/logging"
	"github.com/sambigeara/sadb/pkg/perm"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
)

const (
	configFileName    = "config.yaml"
	DefaultListenAddr = "127.0.0.1:8742"
	directoryPerm     = 0o700
	configFilePerm    = 0o600
)

type Store struct {
	Backend string `yaml:"backend,omitempty"`
}

// Defaults override the field values a create leaves unset. Lengths are
// keyed by frame type and replace the built-in lengths of that type.
type Defaults struct {
	ARSNW   *int                          `yaml:"arsnw,omitempty"`
	Lengths map[string]types.FieldLengths `yaml:"lengths,omitempty"`
}

type Server struct {
	Listen string `yaml:"listen,omitempty"`
}

type Config struct {
	Store    Store          `yaml:"store,omitempty"`
	Log      logging.Config `yaml:"log,omitempty"`
	Defaults Defaults       `yaml:"defaults,omitempty"`
	Server   Server         `yaml:"server,omitempty"`
}

// Path returns the config file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, configFileName)
}

// Load reads config.yaml from dir. A missing or empty file yields defaults.
func Load(dir string) (*Config, error) {
	return LoadFile(Path(dir))
}

func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(dir string, cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, directoryPerm); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := renameio.WriteFile(Path(dir), encoded, configFilePerm); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return perm.SetGroupReadable(Path(dir))
}

func (c *Config) Validate() error {
	if _, err := c.Backend(); err != nil {
		return fmt.Errorf("store.backend: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if _, err := c.SADefaults(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Backend() (store.Backend, error) {
	return store.ParseBackend(c.Store.Backend)
}

func (c *Config) ListenAddr() string {
	if c.Server.Listen == "" {
		return DefaultListenAddr
	}
	return c.Server.Listen
}

// SADefaults merges the configured overrides onto the built-in defaults.
func (c *Config) SADefaults() (types.Defaults, error) {
	d := types.DefaultDefaults()

	if c.Defaults.ARSNW != nil {
		if *c.Defaults.ARSNW < 0 || *c.Defaults.ARSNW > antireplay.MaxWindow {
			return d, fmt.Errorf("defaults.arsnw must be between 0 and %d", antireplay.MaxWindow)
		}
		d.ARSNW = *c.Defaults.ARSNW
	}

	for name, l := range c.Defaults.Lengths {
		ft, err := types.ParseFrameType(name)
		if err != nil || !ft.Concrete() {
			return d, fmt.Errorf("defaults.lengths: unknown frame type %q", name)
		}
		if l.SHIVFLen < 0 || l.SHSNFLen < 0 || l.SHPLFLen < 0 || l.STMACFLen < 0 {
			return d, fmt.Errorf("defaults.lengths.%s: lengths must be >= 0", name)
		}
		d.Lengths[ft] = l
	}
	return d, nil
}
