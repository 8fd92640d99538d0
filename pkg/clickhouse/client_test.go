package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsTranslation(t *testing.T) {
	cfg := ClientConfig{
		Host:         "ch",
		Port:         9440,
		Database:     "riskkernel",
		User:         "kernel",
		Password:     "secret",
		DialTimeout:  2 * time.Second,
		ReadTimeout:  30 * time.Second,
		UseHTTP:      true,
		AsyncInsert:  true,
		WaitForAsync: true,
		MaxExecTime:  90 * time.Second,
	}
	o := options(cfg)

	assert.Equal(t, []string{"ch:9440"}, o.Addr)
	assert.Equal(t, "riskkernel", o.Auth.Database)
	assert.Equal(t, "kernel", o.Auth.Username)
	assert.Equal(t, clickhouse.HTTP, o.Protocol)
	assert.Equal(t, 90, o.Settings["max_execution_time"])
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 1, o.Settings["wait_for_async_insert"])
}

func TestOptionsNativeWithoutSettings(t *testing.T) {
	o := options(ClientConfig{Host: "localhost", Port: 9000})
	assert.Equal(t, clickhouse.Native, o.Protocol)
	assert.Empty(t, o.Settings)
}

func TestDefaultsSuitAuditWrites(t *testing.T) {
	cfg := DefaultClientConfig()
	WithEndpoint("ch", 0)(&cfg)
	require.NoError(t, cfg.validate())
	assert.Equal(t, "ch:9000", cfg.Addr())

	o := options(cfg)
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 1, o.Settings["wait_for_async_insert"])
	assert.Equal(t, 60, o.Settings["max_execution_time"])

	WithAsyncInsert(false, true)(&cfg)
	assert.False(t, cfg.WaitForAsync)
	assert.NotContains(t, options(cfg).Settings, "async_insert")
}

func TestConfigValidate(t *testing.T) {
	bad := map[string]ClientOption{
		"no host":   WithEndpoint("", 9000),
		"bad port":  WithEndpoint("ch", 70000),
		"idle>open": func(c *ClientConfig) { c.Host = "ch"; c.MaxIdleConns = 20 },
		"wait only": func(c *ClientConfig) { c.Host = "ch"; c.AsyncInsert = false },
	}
	for name, opt := range bad {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			opt(&cfg)
			assert.Error(t, cfg.validate())
		})
	}

	cfg := DefaultClientConfig()
	WithEndpoint("ch", 9440)(&cfg)
	WithPool(0, 0, 0)(&cfg)
	WithTimeouts(0, time.Minute)(&cfg)
	require.NoError(t, cfg.validate())
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, time.Minute, cfg.ReadTimeout)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestInitSchemaStopsAtFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	c := NewFromDB(db)
	defer c.Close()

	mock.ExpectExec("CREATE DATABASE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("boom"))

	err = c.InitSchema(context.Background(), []string{
		"CREATE DATABASE IF NOT EXISTS riskkernel",
		"CREATE TABLE IF NOT EXISTS riskkernel.decisions (id String) ENGINE=MergeTree ORDER BY id",
		"CREATE TABLE never_reached",
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
