// Package config loads and watches the host's configuration files. Configs
// are named YAML documents resolved through viper with environment variable
// overrides, and file changes are propagated to registered listeners.
package config

// Config is the contract every loadable configuration satisfies.
type Config interface {
	// GetName returns the configuration name used for registration with the
	// Manager and as the config file basename.
	GetName() string

	// Validate checks the loaded values before they are published.
	Validate() error
}

// ChangeListener is notified after a watched configuration file is reloaded
// and validated. oldConfig is nil on the initial load.
type ChangeListener interface {
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
}

// ValidatorFunc is an additional validation step registered per config name.
type ValidatorFunc func(Config) error
