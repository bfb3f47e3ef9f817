package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yuku/sqlactor/actor"
)

// PooledConn is a connection borrowed from a *pgxpool.Pool and owned by a
// single actor until it is closed.
type PooledConn struct {
	conn *pgxpool.Conn
	once sync.Once
}

var _ actor.Resource = (*PooledConn)(nil)

// Conn returns the underlying connection. It must not be used after Close.
func (c *PooledConn) Conn() *pgx.Conn {
	return c.conn.Conn()
}

// Close returns the connection to its pgxpool. Closing twice is a no-op.
func (c *PooledConn) Close(context.Context) error {
	c.once.Do(c.conn.Release)
	return nil
}

// FromPool returns an actor.Opener that dedicates one connection of pool to
// each actor. Session state such as temporary tables, prepared statements and
// advisory locks then stays with the actor between operations.
//
// The caller keeps ownership of pool and must close it after every actor
// opened from it has terminated.
func FromPool(pool *pgxpool.Pool) actor.Opener[*PooledConn] {
	return func(ctx context.Context) (*PooledConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire connection from pgxpool: %w", err)
		}
		return &PooledConn{conn: conn}, nil
	}
}
