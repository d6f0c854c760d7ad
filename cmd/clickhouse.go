package cmd

import (
	"context"
	"net"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/lateralwatch/engine/config"
)

// openClickHouse dials the alert database using the same clickhouse-go
// options the teacher's ConnectToDB builds (database/db.go), trimmed to
// the fields this module actually has: a single DSN/credential triple
// under config.Env rather than a per-dataset database name, and no
// rolling/mutation settings since C8 only ever does single-row inserts.
func openClickHouse(ctx context.Context, cfg config.Config) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Env.ClickHouseDSN},
		Auth: clickhouse.Auth{
			Database: cfg.AlertSink.ClickHouseDatabase,
			Username: cfg.Env.ClickHouseUsername,
			Password: cfg.Env.ClickHousePassword,
		},
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:      time.Second * 30,
		MaxOpenConns:     10,
		MaxIdleConns:     10,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}

	return conn, nil
}
