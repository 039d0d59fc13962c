package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/logging"
	"github.com/goliatone/go-actionqueue/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "actionq.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Manager.PoolSize)
	assert.Equal(t, 2, cfg.Manager.MaxParallelism)
	assert.Equal(t, 500*time.Millisecond, cfg.Manager.DisposeTimeout)
	assert.Equal(t, BackendZerolog, cfg.Logging.Backend)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
	assert.Len(t, cfg.Kinds, 6)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("ACTIONQ_MANAGER_POOL_SIZE", "3")
	t.Setenv("ACTIONQ_MANAGER_DISPOSE_TIMEOUT", "2s")
	t.Setenv("ACTIONQ_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join("testdata", "actionq.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Manager.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.Manager.DisposeTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Manager.MaxParallelism, "unset variables keep file values")
}

func TestInvalidEnvironmentValue(t *testing.T) {
	t.Setenv("ACTIONQ_MANAGER_POOL_SIZE", "many")
	_, err := Load("")
	assert.True(t, actionqueue.IsConfigInvalid(err))
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.yaml"))
	assert.True(t, actionqueue.IsConfigInvalid(err))
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("manager:\n  workers: 3\n"))
	assert.True(t, actionqueue.IsConfigInvalid(err))
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Manager.PoolSize = -1
	cfg.Manager.MaxParallelism = 0
	cfg.Logging.Backend = "syslog"
	cfg.Kinds = map[string]string{"open": "creational|sometimes"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, actionqueue.IsConfigInvalid(err))
	for _, want := range []string{"pool_size", "max_parallelism", "syslog", "kinds.open"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestFlagTableFromKinds(t *testing.T) {
	cfg, err := Parse([]byte(`
kinds:
  open: creational
  close: terminating
  reconnect: creational|terminating
`))
	require.NoError(t, err)

	table, err := cfg.FlagTable()
	require.NoError(t, err)

	assert.Equal(t, []string{"close", "open", "reconnect"}, table.Kinds())
	assert.Equal(t, actionqueue.Creational, table.Flags("open"))
	assert.True(t, table.Flags("close").Has(actionqueue.Blocking))
	assert.True(t, table.Flags("reconnect").Has(actionqueue.Creational|actionqueue.Terminating))
}

func TestNewLoggerBackends(t *testing.T) {
	buf := &bytes.Buffer{}

	zl := LoggingConfig{Backend: BackendZerolog, Level: "info", Format: FormatJSON}.NewLogger(buf)
	assert.IsType(t, logging.Zerolog{}, zl)
	zl.Info("queue created")
	assert.Contains(t, buf.String(), "queue created")

	gl := LoggingConfig{Backend: BackendGlog, Level: "info", Format: FormatJSON}.NewLogger(buf)
	assert.IsType(t, logging.Glog{}, gl)

	fl := LoggingConfig{Backend: BackendFmt, Level: "warn"}.NewLogger(buf)
	assert.IsType(t, &actionqueue.FmtLogger{}, fl)
	buf.Reset()
	fl.Info("queue created")
	fl.Warn("dispose timeout")
	assert.NotContains(t, buf.String(), "queue created")
	assert.Contains(t, buf.String(), "dispose timeout")
}

func TestManagerOptionsBuildManager(t *testing.T) {
	cfg := Default()
	cfg.Manager.MaxParallelism = 2

	opts := ManagerOptions[string](cfg, actionqueue.NopLogger{})
	assert.Len(t, opts, 4)

	m := manager.New(opts...)
	defer m.Dispose()

	a := actionqueue.NewAction("k", nil, false, actionqueue.WithFlags(actionqueue.Creational))
	ok, err := m.Submit(a)
	require.NoError(t, err)
	assert.True(t, ok)
	<-a.Done()
}
