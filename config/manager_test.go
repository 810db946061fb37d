package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hostConfig struct {
	Libraries []string `mapstructure:"libraries"`
	Lazy      bool     `mapstructure:"lazy"`
}

func (c *hostConfig) GetName() string { return "host" }

func (c *hostConfig) Validate() error {
	for _, lib := range c.Libraries {
		if lib == "" {
			return errors.New("empty library path")
		}
	}
	return nil
}

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestManager(t *testing.T) (Manager, string) {
	t.Helper()
	dir := t.TempDir()
	cm := NewManager()
	cm.SetBasePath(dir)
	t.Cleanup(func() { _ = cm.Close() })
	return cm, dir
}

// recordingListener collects change notifications for assertions.
type recordingListener struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingListener) OnConfigChanged(name string, newConfig, oldConfig Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	kind := "reload"
	if oldConfig == nil {
		kind = "initial"
	}
	l.calls = append(l.calls, fmt.Sprintf("%s:%s", name, kind))
	return nil
}

func (l *recordingListener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

func TestLoadConfigFromYAML(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "host", "libraries:\n  - a.so\n  - b.so\nlazy: true\n")

	cfg := &hostConfig{}
	require.NoError(t, cm.LoadConfig(cfg))
	assert.Equal(t, []string{"a.so", "b.so"}, cfg.Libraries)
	assert.True(t, cfg.Lazy)

	got, err := cm.GetConfig("host")
	require.NoError(t, err)
	assert.Same(t, Config(cfg), got)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cm, _ := newTestManager(t)

	err := cm.LoadConfig(&hostConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config host failed")
}

func TestGetConfigUnknownName(t *testing.T) {
	cm, _ := newTestManager(t)

	_, err := cm.GetConfig("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidationRejectsBadConfig(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "host", "libraries:\n  - \"\"\n")

	err := cm.LoadConfig(&hostConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config host failed")
}

func TestRegisteredValidatorRuns(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "host", "libraries:\n  - a.so\n")

	cm.RegisterValidator("host", func(c Config) error {
		if len(c.(*hostConfig).Libraries) > 0 {
			return errors.New("no libraries allowed here")
		}
		return nil
	})

	err := cm.LoadConfig(&hostConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no libraries allowed here")
}

func TestEnvironmentSubdirectoryPrecedence(t *testing.T) {
	cm, dir := newTestManager(t)
	cm.SetEnvironment("production")

	prodDir := filepath.Join(dir, "production")
	require.NoError(t, os.Mkdir(prodDir, 0o755))
	writeConfigFile(t, dir, "host", "lazy: false\nlibraries: [base.so]\n")
	writeConfigFile(t, prodDir, "host", "lazy: true\nlibraries: [prod.so]\n")

	cfg := &hostConfig{}
	require.NoError(t, cm.LoadConfig(cfg))
	// The base path is searched first, so the root file wins when both
	// exist; the environment directory is the fallback.
	assert.Equal(t, []string{"base.so"}, cfg.Libraries)
}

func TestInitialLoadNotifiesListeners(t *testing.T) {
	cm, dir := newTestManager(t)
	writeConfigFile(t, dir, "host", "libraries: [a.so]\n")

	listener := &recordingListener{}
	cm.AddChangeListener(listener)

	require.NoError(t, cm.LoadConfig(&hostConfig{}))
	assert.Equal(t, []string{"host:initial"}, listener.snapshot())
}

func TestReloadOnFileChange(t *testing.T) {
	cm, dir := newTestManager(t)
	path := writeConfigFile(t, dir, "host", "libraries: [a.so]\n")

	listener := &recordingListener{}
	cm.AddChangeListener(listener)
	require.NoError(t, cm.LoadConfig(&hostConfig{}))

	require.NoError(t, os.WriteFile(path, []byte("libraries: [a.so, b.so]\n"), 0o644))

	require.Eventually(t, func() bool {
		got, err := cm.GetConfig("host")
		if err != nil {
			return false
		}
		return len(got.(*hostConfig).Libraries) == 2
	}, 5*time.Second, 20*time.Millisecond)

	calls := listener.snapshot()
	require.NotEmpty(t, calls)
	assert.Equal(t, "host:initial", calls[0])
	assert.Contains(t, calls, "host:reload")
}

func TestReloadKeepsOldConfigOnValidationFailure(t *testing.T) {
	cm, dir := newTestManager(t)
	path := writeConfigFile(t, dir, "host", "libraries: [a.so]\n")

	require.NoError(t, cm.LoadConfig(&hostConfig{}))

	// The new content fails Validate, so the published config must not
	// change.
	require.NoError(t, os.WriteFile(path, []byte("libraries: [\"\"]\n"), 0o644))

	assert.Never(t, func() bool {
		got, _ := cm.GetConfig("host")
		return len(got.(*hostConfig).Libraries) != 1 || got.(*hostConfig).Libraries[0] != "a.so"
	}, 500*time.Millisecond, 50*time.Millisecond)
}
