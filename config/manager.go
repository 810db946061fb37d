package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/lcx/pluginhost/log"
)

// Manager is the configuration management interface.
type Manager interface {
	LoadConfig(config Config) error
	GetConfig(configName string) (Config, error)
	RegisterValidator(configName string, validator ValidatorFunc)
	AddChangeListener(listener ChangeListener)
	SetBasePath(path string)
	SetEnvironment(env string)
	Close() error
}

type manager struct {
	mu        sync.RWMutex
	configs   map[string]Config
	watchers  map[string]*fsnotify.Watcher
	validator map[string]ValidatorFunc
	listeners []ChangeListener
	basePath  string
	env       string
}

// NewManager creates a configuration manager rooted at ./configs.
func NewManager() Manager {
	return &manager{
		configs:   make(map[string]Config),
		watchers:  make(map[string]*fsnotify.Watcher),
		validator: make(map[string]ValidatorFunc),
		basePath:  "./configs",
		env:       "development",
	}
}

func (cm *manager) newViper(configName string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.AddConfigPath(fmt.Sprintf("%s/%s", cm.basePath, cm.env))

	// Environment variables override file values.
	v.AutomaticEnv()
	v.SetEnvPrefix(strings.ToUpper(configName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// LoadConfig reads, validates, stores and watches the named configuration.
func (cm *manager) LoadConfig(config Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	configName := config.GetName()
	v := cm.newViper(configName)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s failed: %w", configName, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config %s failed: %w", configName, err)
	}
	if err := cm.validate(configName, config); err != nil {
		return err
	}

	cm.configs[configName] = config
	cm.notifyListeners(configName, config, nil)

	if err := cm.watchConfigFile(configName, v); err != nil {
		return fmt.Errorf("watch config file failed: %w", err)
	}
	return nil
}

func (cm *manager) validate(configName string, config Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("validate config %s failed: %w", configName, err)
	}
	if validator, exists := cm.validator[configName]; exists {
		if err := validator(config); err != nil {
			return fmt.Errorf("validate config %s failed: %w", configName, err)
		}
	}
	return nil
}

// GetConfig retrieves a previously loaded configuration.
func (cm *manager) GetConfig(configName string) (Config, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	config, exists := cm.configs[configName]
	if !exists {
		return nil, fmt.Errorf("config %s not found", configName)
	}
	return config, nil
}

// RegisterValidator registers an extra validation step for a config name.
func (cm *manager) RegisterValidator(configName string, validator ValidatorFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.validator[configName] = validator
}

// AddChangeListener registers a listener for all config reloads.
func (cm *manager) AddChangeListener(listener ChangeListener) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.listeners = append(cm.listeners, listener)
}

// SetBasePath sets the directory config files are resolved from.
func (cm *manager) SetBasePath(path string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.basePath = path
}

// SetEnvironment selects the environment subdirectory searched after the
// base path.
func (cm *manager) SetEnvironment(env string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.env = env
}

func (cm *manager) watchConfigFile(configName string, v *viper.Viper) error {
	configFile := v.ConfigFileUsed()
	if configFile == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	cm.watchers[configName] = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					cm.reloadConfig(configName)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Str("config", configName).Err(err).Msg("config watcher error")
			}
		}
	}()

	return watcher.Add(configFile)
}

func (cm *manager) reloadConfig(configName string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig, exists := cm.configs[configName]
	if !exists {
		return
	}

	// New instance of the same concrete type so the old value stays intact
	// if anything below fails.
	newConfig := reflect.New(reflect.TypeOf(oldConfig).Elem()).Interface().(Config)

	v := cm.newViper(configName)
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("config", configName).Err(err).Msg("reload: read failed, keeping old config")
		return
	}
	if err := v.Unmarshal(newConfig); err != nil {
		log.Warn().Str("config", configName).Err(err).Msg("reload: unmarshal failed, keeping old config")
		return
	}
	if err := cm.validate(configName, newConfig); err != nil {
		log.Warn().Str("config", configName).Err(err).Msg("reload: validation failed, keeping old config")
		return
	}

	cm.configs[configName] = newConfig
	cm.notifyListeners(configName, newConfig, oldConfig)
}

func (cm *manager) notifyListeners(configName string, newConfig, oldConfig Config) {
	for _, listener := range cm.listeners {
		if err := listener.OnConfigChanged(configName, newConfig, oldConfig); err != nil {
			log.Warn().Str("config", configName).Err(err).Msg("config change listener failed")
		}
	}
}

// Close shuts down all file watchers.
func (cm *manager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, watcher := range cm.watchers {
		if err := watcher.Close(); err != nil {
			return err
		}
	}
	return nil
}
