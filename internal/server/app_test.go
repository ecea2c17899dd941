package server

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/server/config"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(store, dsn string) *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.Store = store
	c.DatabaseDSN = dsn
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.EndpointAddrMetrics = "127.0.0.1:0"
	return c
}

func TestApp_RunBootstrapsAndStops(t *testing.T) {
	for _, tc := range []struct{ store, dsn string }{
		{repomanager.StoreMemory, ""},
		{repomanager.StoreSQLite, "file:app_test?mode=memory&cache=shared"},
	} {
		t.Run(tc.store, func(t *testing.T) {
			var logs bytes.Buffer
			app, err := newApp(context.Background(), testConfig(tc.store, tc.dsn), &logs)
			require.NoError(t, err)
			require.NoError(t, app.healthCheck(context.Background()))

			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			require.NoError(t, app.Run(ctx))

			assert.Contains(t, logs.String(), "superadmin_bootstrapped")
			assert.Contains(t, logs.String(), "App stopped")
		})
	}
}

func TestApp_BootstrapCreatesSuperAdmin(t *testing.T) {
	app, err := newApp(context.Background(), testConfig(repomanager.StoreMemory, ""), &bytes.Buffer{})
	require.NoError(t, err)
	defer app.Close()

	created, err := app.accounts.EnsureSuperAdmin(context.Background())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = app.accounts.EnsureSuperAdmin(context.Background())
	require.NoError(t, err)
	assert.False(t, created)

	mfs, err := app.registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
	assert.Contains(t, names, "staffkeeper_lockouts_total")
}

func TestNewApp_Errors(t *testing.T) {
	c := testConfig("cassandra", "")
	_, err := newApp(context.Background(), c, &bytes.Buffer{})
	assert.Error(t, err)

	c = testConfig(repomanager.StoreMemory, "")
	c.PBKDF2Iterations = 10
	_, err = newApp(context.Background(), c, &bytes.Buffer{})
	assert.ErrorContains(t, err, "password codec")
}

func TestRun_FailsOnBusyAddress(t *testing.T) {
	c := testConfig(repomanager.StoreMemory, "")
	c.EndpointAddrGRPC = "127.0.0.1:99999"
	app, err := newApp(context.Background(), c, &bytes.Buffer{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorContains(t, app.Run(ctx), "grpc")
}
