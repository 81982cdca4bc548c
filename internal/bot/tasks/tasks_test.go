package tasks_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/stashbot/internal/bot/tasks"
	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/database"
	"github.com/edgard/stashbot/internal/logger"
)

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()
	registry := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: logger.Discard()})

	assert.Len(t, registry, 2)
	assert.Contains(t, registry, tasks.SQLMaintenance)
	assert.Contains(t, registry, tasks.KeepAlive)
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()
	db, err := database.NewDB(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "m.db"), MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	registry := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: logger.Discard(), Store: database.NewStore(db, nil)})
	assert.NoError(t, registry[tasks.SQLMaintenance](context.Background()))

	registry = tasks.RegisterAllTasks(tasks.TaskDeps{Logger: logger.Discard()})
	assert.Error(t, registry[tasks.SQLMaintenance](context.Background()))
}

func TestKeepAliveTask(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			hits.Add(1)
		}
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{Telegram: config.TelegramConfig{WebhookURL: srv.URL + "/webhook?x=1"}}
	task := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: logger.Discard(), Config: cfg, HTTPClient: srv.Client()})[tasks.KeepAlive]

	require.NoError(t, task(context.Background()))
	assert.Equal(t, int32(1), hits.Load())

	status.Store(http.StatusServiceUnavailable)
	assert.Error(t, task(context.Background()))

	noURL := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: logger.Discard(), Config: &config.Config{}})[tasks.KeepAlive]
	assert.Error(t, noURL(context.Background()))
}

func TestHealthURL(t *testing.T) {
	t.Parallel()

	got, err := tasks.HealthURL("https://bot.example.com/hooks/telegram?token=x")
	require.NoError(t, err)
	assert.Equal(t, "https://bot.example.com/healthz", got)

	_, err = tasks.HealthURL("not a url")
	assert.Error(t, err)
}
