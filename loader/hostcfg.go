package loader

import (
	"fmt"

	"github.com/lcx/pluginhost/config"
	"github.com/lcx/pluginhost/log"
	"github.com/lcx/pluginhost/registry"
)

// HostCfg is the host-level configuration loaded through the config
// manager. Example YAML (configs/pluginhost.yaml):
//
//	lazy: true
//	libraries:
//	  - ./plugins/libsensors.so
//	  - ./plugins/libfilters.so
//	log:
//	  level: info
//	  consoleAppender: true
type HostCfg struct {
	// Libraries are bound (and in eager mode opened) at startup.
	Libraries []string `mapstructure:"libraries"`

	// Lazy selects on-demand load/unload for every loader created from this
	// configuration.
	Lazy bool `mapstructure:"lazy"`

	// Log feeds the default logger.
	Log log.Cfg `mapstructure:"log"`
}

// GetName implements config.Config.
func (c *HostCfg) GetName() string { return "pluginhost" }

// Validate implements config.Config.
func (c *HostCfg) Validate() error {
	seen := make(map[string]struct{}, len(c.Libraries))
	for _, path := range c.Libraries {
		if path == "" {
			return fmt.Errorf("empty library path in pluginhost config")
		}
		if _, dup := seen[path]; dup {
			return fmt.Errorf("library %s listed twice in pluginhost config", path)
		}
		seen[path] = struct{}{}
	}
	return nil
}

// NewMultiLoaderFromConfig builds a MultiLoader from the "pluginhost"
// configuration, preloads the listed libraries, and keeps following the
// config: libraries added on a hot reload are bound, and log level changes
// are applied to the default logger. Libraries removed from the config are
// left alone; unloading running code is an explicit operation.
func NewMultiLoaderFromConfig(reg *registry.Registry, cm config.Manager, opts ...Option) (*MultiLoader, error) {
	cfg := &HostCfg{}
	if err := cm.LoadConfig(cfg); err != nil {
		return nil, err
	}

	log.SetLevel(log.ParseLevel(cfg.Log.Level))

	ml := NewMultiLoader(reg, cfg.Lazy, opts...)
	for _, path := range cfg.Libraries {
		if err := ml.LoadLibrary(path); err != nil {
			ml.Close()
			return nil, fmt.Errorf("preload library %s: %w", path, err)
		}
	}

	cm.AddChangeListener(&hostCfgListener{ml: ml})
	return ml, nil
}

type hostCfgListener struct {
	ml *MultiLoader
}

func (h *hostCfgListener) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "pluginhost" {
		return nil
	}
	cfg, ok := newConfig.(*HostCfg)
	if !ok {
		return fmt.Errorf("unexpected config type %T for pluginhost", newConfig)
	}
	if oldConfig == nil {
		// Initial load is handled by NewMultiLoaderFromConfig.
		return nil
	}

	log.SetLevel(log.ParseLevel(cfg.Log.Level))

	for _, path := range cfg.Libraries {
		if h.ml.IsLibraryAvailable(path) {
			continue
		}
		if err := h.ml.LoadLibrary(path); err != nil {
			log.Warn().Str("library", path).Err(err).Msg("failed to bind library added by config reload")
		}
	}
	return nil
}
