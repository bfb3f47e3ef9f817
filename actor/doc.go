// Package actor runs a single-owner resource on its own goroutine.
//
// A resource such as a database connection that must never be used by two
// goroutines at once is opened, used and closed by exactly one goroutine. All
// access goes through a Handle, which only holds the actor's command queue:
//
//	h, err := actor.Spawn(ctx, func(ctx context.Context) (*pgx.Conn, error) {
//		return pgx.Connect(ctx, databaseURL)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer h.Close(context.Background())
//
//	n, err := actor.Call(ctx, h, func(conn *pgx.Conn) (int, error) {
//		var n int
//		err := conn.QueryRow(ctx, "SELECT 1").Scan(&n)
//		return n, err
//	})
//
// Commands queued through the same actor run one at a time in the order they
// were enqueued. A caller that stops waiting does not cancel the operation; it
// still runs to completion and its result is discarded.
package actor
