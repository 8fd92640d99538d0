package clickhouse

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds the connection and write settings of the audit store.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	UseHTTP         bool

	// Decision rows arrive one per step, so the server batches them when
	// AsyncInsert is on. WaitForAsync holds the ack until the batch is flushed.
	AsyncInsert  bool
	WaitForAsync bool
	MaxExecTime  time.Duration
}

// DefaultClientConfig returns the settings used for decision audit writes.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:            9000,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		AsyncInsert:     true,
		WaitForAsync:    true,
		MaxExecTime:     time.Minute,
	}
}

// Addr is the host:port the pool dials.
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ClientConfig) validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("clickhouse: host is required")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("clickhouse: port %d out of range", c.Port)
	case c.MaxOpenConns <= 0 || c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("clickhouse: pool %d open / %d idle", c.MaxOpenConns, c.MaxIdleConns)
	case c.DialTimeout <= 0:
		return fmt.Errorf("clickhouse: dial timeout must be positive")
	case c.WaitForAsync && !c.AsyncInsert:
		return fmt.Errorf("clickhouse: wait_for_async_insert needs async_insert")
	}
	return nil
}

// WithEndpoint sets host and port. A zero port keeps the native default.
func WithEndpoint(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
		if port != 0 {
			c.Port = port
		}
	}
}

func WithDatabase(database string) ClientOption {
	return func(c *ClientConfig) { c.Database = database }
}

func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User = user
		c.Password = password
	}
}

// WithPool sizes the connection pool. Zero values keep the defaults.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if maxOpen > 0 {
			c.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			c.MaxIdleConns = maxIdle
		}
		if lifetime > 0 {
			c.ConnMaxLifetime = lifetime
		}
	}
}

// WithTimeouts sets dial and read timeouts. Zero values keep the defaults.
func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithHTTP selects the HTTP protocol instead of native.
func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) { c.UseHTTP = useHTTP }
}

// WithAsyncInsert overrides the audit-write insert mode. Synchronous inserts
// (false, false) suit backfills that write large batches themselves.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert = enabled
		c.WaitForAsync = enabled && wait
	}
}

// WithMaxExecutionTime caps every query server-side. Zero removes the cap.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
