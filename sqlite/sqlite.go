// Package sqlite provides a single SQLite connection that can be owned by an
// actor and pooled by sqlactor.Pool.
//
// A Conn wraps exactly one underlying connection. It is not safe for
// concurrent use; hand it to actor.Spawn or sqlactor.New through Opener.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/yuku/sqlactor/actor"
)

// DriverName is the database/sql driver used to open connections.
const DriverName = "sqlite"

// MemoryPath opens a private in-memory database. Every connection opened with
// it sees its own empty database.
const MemoryPath = ":memory:"

type Config struct {
	// Path is the database file. Empty means MemoryPath.
	Path string

	// ReadOnly opens the database read-only. The file must exist.
	ReadOnly bool

	// NoCreate fails instead of creating a missing database file.
	NoCreate bool

	// Pragmas are applied in order after opening. Each one that reports a
	// value is read back and must report the expected value.
	Pragmas []Pragma
}

// Pragma is a PRAGMA statement applied to every new connection.
type Pragma struct {
	Name  string
	Value string

	// Expect is the value PRAGMA Name must report afterwards. Empty means
	// Value. Boolean and named values are compared by what SQLite reports for
	// them, so ON matches 1 and synchronous NORMAL matches 1.
	Expect string
}

// PragmaError reports a pragma that did not take the expected value.
type PragmaError struct {
	Name string
	Want string
	Got  string
}

func (e *PragmaError) Error() string {
	return fmt.Sprintf("updating pragma %s: expected '%s', got '%s'", e.Name, e.Want, e.Got)
}

func (c Config) Validate() error {
	for _, p := range c.Pragmas {
		if !validPragmaName(p.Name) {
			return fmt.Errorf("invalid pragma name %q", p.Name)
		}
	}
	if c.ReadOnly && c.memory() {
		return errors.New("read-only mode requires a database path")
	}
	return nil
}

func (c Config) memory() bool {
	return c.Path == "" || c.Path == MemoryPath
}

// DSN returns the data source name passed to the driver.
func (c Config) DSN() string {
	if c.memory() {
		return MemoryPath
	}
	q := url.Values{}
	switch {
	case c.ReadOnly:
		q.Set("mode", "ro")
	case c.NoCreate:
		q.Set("mode", "rw")
	}
	if len(q) == 0 {
		return c.Path
	}
	return "file:" + c.Path + "?" + q.Encode()
}

func validPragmaName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && r != '_' {
			return false
		}
	}
	return true
}

// Conn is one SQLite connection.
type Conn struct {
	path string
	db   *sql.DB
	conn *sql.Conn
}

var _ actor.Resource = (*Conn)(nil)

// Open opens one connection described by conf.
func Open(ctx context.Context, conf Config) (*Conn, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sqlite configuration: %w", err)
	}

	db, err := sql.Open(DriverName, conf.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", conf.DSN(), err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// database/sql connects lazily; reserving the connection opens the file.
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", conf.DSN(), err)
	}

	c := &Conn{path: conf.DSN(), db: db, conn: conn}
	for _, p := range conf.Pragmas {
		if err := c.updatePragma(ctx, p); err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
	}
	return c, nil
}

// Opener returns an actor.Opener that opens connections described by conf.
func Opener(conf Config) actor.Opener[*Conn] {
	return func(ctx context.Context) (*Conn, error) {
		return Open(ctx, conf)
	}
}

func (c *Conn) updatePragma(ctx context.Context, p Pragma) error {
	if _, err := c.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.Name, p.Value)); err != nil {
		return fmt.Errorf("failed to update pragma %s: %w", p.Name, err)
	}
	got, err := c.Pragma(ctx, p.Name)
	if errors.Is(err, sql.ErrNoRows) && p.Expect == "" {
		// Write-only pragmas report nothing.
		return nil
	}
	if err != nil {
		return err
	}
	want := p.Expect
	if want == "" {
		want = p.Value
	}
	if pragmaValue(p.Name, want) != pragmaValue(p.Name, got) {
		return &PragmaError{Name: p.Name, Want: want, Got: got}
	}
	return nil
}

// namedPragmaValues maps the keywords some pragmas accept to the number they
// report.
var namedPragmaValues = map[string]map[string]string{
	"synchronous":   {"normal": "1", "full": "2", "extra": "3"},
	"temp_store":    {"default": "0", "file": "1", "memory": "2"},
	"auto_vacuum":   {"none": "0", "full": "1", "incremental": "2"},
	"secure_delete": {"fast": "2"},
}

// pragmaValue returns v in the form SQLite reports it for pragma name.
func pragmaValue(name, v string) string {
	v = strings.ToLower(strings.Trim(strings.TrimSpace(v), `'"`))
	switch v {
	case "on", "true", "yes":
		return "1"
	case "off", "false", "no":
		return "0"
	}
	if n, ok := namedPragmaValues[strings.ToLower(name)][v]; ok {
		return n
	}
	return v
}

// Pragma returns the current value of the named pragma.
func (c *Conn) Pragma(ctx context.Context, name string) (string, error) {
	if !validPragmaName(name) {
		return "", fmt.Errorf("invalid pragma name %q", name)
	}
	var v string
	if err := c.conn.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v); err != nil {
		return "", fmt.Errorf("failed to read pragma %s: %w", name, err)
	}
	return v, nil
}

// Path returns the data source name the connection was opened with.
func (c *Conn) Path() string {
	return c.path
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

// Raw returns the underlying database/sql connection.
func (c *Conn) Raw() *sql.Conn {
	return c.conn
}

// Close closes the connection. If it fails, c is left as it was as far as
// possible and Close may be called again.
func (c *Conn) Close(context.Context) error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			return fmt.Errorf("failed to close sqlite connection %s: %w", c.path, err)
		}
		c.conn = nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite database %s: %w", c.path, err)
	}
	return nil
}
