package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  host: db\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "vms-snapshots", cfg.MinIO.Bucket)

	assert.InDelta(t, 0.70, cfg.Vision.MinFaceConfidence, 1e-9)
	assert.InDelta(t, 0.40, cfg.Vision.DistanceThreshold, 1e-9)
	assert.Equal(t, 2, cfg.Vision.ExtractorPool)
	assert.InDelta(t, 5.0, cfg.Vision.DefaultFPS, 1e-9)

	assert.Equal(t, 60*time.Second, cfg.Behavior.LoiteringThreshold())
	assert.Equal(t, 30*time.Second, cfg.Behavior.SuppressionWindow())
	assert.Equal(t, 45*time.Second, cfg.Behavior.UnknownAlertInterval())
	assert.Equal(t, time.Minute, cfg.Behavior.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.Behavior.InsideRetention)

	assert.Equal(t, "boundaries", cfg.Geofence.BoundariesDir)
	assert.Equal(t, 60*time.Second, cfg.Geofence.ViolationThreshold())

	assert.Empty(t, cfg.Dispatcher.URL)
	assert.Equal(t, 2*time.Second, cfg.Dispatcher.Timeout)
	assert.Equal(t, 2, cfg.Dispatcher.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatcher.RetryDelay)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9000
behavior:
  loitering_seconds: 120
  sweep_interval: 30s
dispatcher:
  url: http://sink.local/alerts
  retry_delay: 1s
logging:
  format: text
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Behavior.LoiteringThreshold())
	assert.Equal(t, 30*time.Second, cfg.Behavior.SweepInterval)
	assert.Equal(t, "http://sink.local/alerts", cfg.Dispatcher.URL)
	assert.Equal(t, time.Second, cfg.Dispatcher.RetryDelay)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_NonPositiveIntervalsFallBack(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
behavior:
  sweep_interval: -5s
  inside_retention: -1h
`))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Behavior.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.Behavior.InsideRetention)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VMS_SERVER_PORT", "7070")
	t.Setenv("VMS_DB_PASSWORD", "secret")
	t.Setenv("VMS_NATS_URL", "nats://bus:4222")
	t.Setenv("VMS_DISTANCE_THRESHOLD", "0.55")
	t.Setenv("VMS_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.InDelta(t, 0.55, cfg.Vision.DistanceThreshold, 1e-9)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_DispatchURLPrecedence(t *testing.T) {
	t.Setenv("BACKEND_WEBHOOK_URL", "http://legacy/hook")
	cfg, err := Load(writeConfig(t, "dispatcher:\n  url: http://file/hook\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://legacy/hook", cfg.Dispatcher.URL)

	t.Setenv("VMS_DISPATCH_URL", "http://new/hook")
	cfg, err = Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "http://new/hook", cfg.Dispatcher.URL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "vms", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/vms?sslmode=disable", d.DSN())
}
