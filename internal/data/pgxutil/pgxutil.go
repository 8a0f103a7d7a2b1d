// Package pgxutil bridges database/sql pools to native pgx connections.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNotPgx is returned when the pool was not opened with the pgx stdlib driver.
var ErrNotPgx = errors.New("driver connection is not *stdlib.Conn")

// ReadCommitted is the isolation used by queue claims.
var ReadCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

// WithConn pins one pooled connection and hands fn its underlying *pgx.Conn.
// The connection returns to the pool when fn returns.
func WithConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer conn.Close() //nolint:errcheck // returning a conn to the pool cannot fail meaningfully

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return ErrNotPgx
		}
		return fn(std.Conn())
	})
}

// InTx runs fn inside a pgx transaction. fn's error rolls back; a nil return commits.
func InTx(ctx context.Context, db *sql.DB, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return WithConn(ctx, db, func(conn *pgx.Conn) error {
		return pgx.BeginTxFunc(ctx, conn, opts, fn)
	})
}

// WaitForNotification LISTENs on channel and blocks until one notification
// arrives or ctx ends, returning its payload. The channel is UNLISTENed
// before the conn is released.
func WaitForNotification(ctx context.Context, db *sql.DB, channel string) (string, error) {
	var payload string
	err := WithConn(ctx, db, func(conn *pgx.Conn) error {
		quoted := pgx.Identifier{channel}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+quoted); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}
		defer conn.Exec(context.WithoutCancel(ctx), "UNLISTEN "+quoted) //nolint:errcheck // best effort

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		payload = n.Payload
		return nil
	})
	return payload, err
}
