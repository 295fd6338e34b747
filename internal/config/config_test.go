package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("AUTH_TOKEN_TTL", "90m")
	t.Setenv("SCHEDULER_JOBS", "deliver_notifications, expire_subscriptions,")
	t.Setenv("DATABASE_MAX_OPEN_CONN", "not-a-number")

	cfg := Load()

	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"deliver_notifications", "expire_subscriptions"}, cfg.Scheduler.Jobs)
	assert.Equal(t, 50, cfg.DBMaxOpenConn)
}

func TestNotificationCatalogDefaults(t *testing.T) {
	catalog, err := NewNotificationCatalog(Config{NotificationsPath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	tmpl, ok := catalog.Lookup("Case Role Assigned")
	require.True(t, ok)
	assert.True(t, tmpl.Email)

	_, ok = catalog.Lookup("Unknown Action")
	assert.False(t, ok)
}

func TestNotificationCatalogFileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	content := `notifications:
  - action: "Case Closed"
    subject: "Closed: {{.case_number}}"
    body: "done"
    email: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notifications.yml"), []byte(content), 0o600))

	catalog, err := NewNotificationCatalog(Config{NotificationsPath: dir}, zap.NewNop())
	require.NoError(t, err)

	tmpl, ok := catalog.Lookup("Case Closed")
	require.True(t, ok)
	assert.Equal(t, "Closed: {{.case_number}}", tmpl.Subject)
	assert.False(t, tmpl.Email)

	_, ok = catalog.Lookup("Case Opened")
	assert.True(t, ok)
}

func TestNotificationCatalogRejectsIncompleteEntries(t *testing.T) {
	dir := t.TempDir()
	content := "notifications:\n  - action: \"Case Closed\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notifications.yml"), []byte(content), 0o600))

	_, err := NewNotificationCatalog(Config{NotificationsPath: dir}, zap.NewNop())
	assert.Error(t, err)
}
