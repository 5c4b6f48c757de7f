// Package pgfactory provides the PostgreSQL ConnectionFactory backed by
// pgx. The pool treats the returned *pgx.Conn as an opaque handle; query
// execution stays with the caller.
package pgfactory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/SkogAI/agentpool/pool"
)

// Factory implements pool.ConnectionFactory for PostgreSQL targets.
type Factory struct{}

// New creates a pgx-backed connection factory.
func New() *Factory {
	return &Factory{}
}

// Open dials the target and returns the connection as an opaque handle.
func (f *Factory) Open(ctx context.Context, cfg pool.TargetConfig) (pool.Handle, error) {
	connCfg, err := BuildConnConfig(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Name, err)
	}
	return conn, nil
}

// Close terminates the underlying connection.
func (f *Factory) Close(ctx context.Context, h pool.Handle) error {
	conn, ok := h.(*pgx.Conn)
	if !ok {
		return fmt.Errorf("handle is %T, not *pgx.Conn", h)
	}
	return conn.Close(ctx)
}

// Validate pings the server over the connection.
func (f *Factory) Validate(ctx context.Context, h pool.Handle) bool {
	conn, ok := h.(*pgx.Conn)
	if !ok || conn.IsClosed() {
		return false
	}
	return conn.Ping(ctx) == nil
}

// BuildConnConfig translates the pool's target configuration into a pgx
// connection config. TLSMode and the connect timeout are appended as
// connection-string parameters so pgx's own parsing stays authoritative.
func BuildConnConfig(cfg pool.TargetConfig) (*pgx.ConnConfig, error) {
	connString := cfg.ConnString
	if cfg.TLSMode != "" {
		connString = appendParam(connString, "sslmode", cfg.TLSMode)
	}
	if cfg.ConnectTimeout > 0 {
		secs := int(cfg.ConnectTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		connString = appendParam(connString, "connect_timeout", fmt.Sprintf("%d", secs))
	}

	connCfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse conn string for %s: %w", cfg.Name, err)
	}
	return connCfg, nil
}

func appendParam(connString, key, value string) string {
	// URL form (postgres://...); keyword/value form uses spaces
	if strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://") {
		sep := "?"
		if strings.Contains(connString, "?") {
			sep = "&"
		}
		return connString + sep + key + "=" + value
	}
	return connString + " " + key + "=" + value
}
