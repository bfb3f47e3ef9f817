// Package sqlactor provides a connection pool for resources that must only be
// used by one goroutine at a time, such as a single database connection.
//
// Each pooled resource is owned by an actor (see package actor): a goroutine
// that opens the resource, runs every operation on it one at a time, and
// closes it. Callers never touch the resource directly; they send operations
// to the actor and wait for the result.
//
// Basic usage:
//
//	pool, err := sqlactor.New(ctx, sqlite.Opener(sqlite.Config{Path: "app.db"}), sqlactor.Config{
//		MaxConns: 4,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close(context.Background())
//
//	// Acquire a connection
//	conn, err := pool.Acquire(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Release()
//
//	// Use the connection
//	name, err := sqlactor.Call(ctx, conn, func(c *sqlite.Conn) (string, error) {
//		var name string
//		err := c.QueryRow(ctx, "SELECT name FROM users WHERE id = ?", 1).Scan(&name)
//		return name, err
//	})
//
// When all MaxConns actors are in use, Acquire waits until one is released.
// Waiters are served in arrival order. Close wakes every waiter with
// ErrClosed, closes idle actors immediately, and closes checked out actors as
// they are released; it returns once all of them have terminated.
package sqlactor
