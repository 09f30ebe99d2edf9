package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	// Register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/oshokin/enginectl/internal/domain/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_v1 (
	id TEXT PRIMARY KEY NOT NULL,
	host TEXT NOT NULL,
	package TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS event_v1_created_at ON event_v1 (created_at);
`

const insertEventSQL = `
INSERT INTO event_v1 (id, host, package, version, action, outcome, detail, actor, created_at)
VALUES (:id, :host, :package, :version, :action, :outcome, :detail, :actor, :created_at);
`

const listEventsSQL = `
SELECT id, host, package, version, action, outcome, detail, actor, created_at
FROM event_v1
WHERE (? = '' OR host = ?)
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`

const dirMode os.FileMode = 0o755

// Repository records and lists history events.
type Repository interface {
	Record(ctx context.Context, event *engine.Event) error
	List(ctx context.Context, filter Filter) ([]*engine.Event, error)
	Close() error
}

// Filter narrows List results.
type Filter struct {
	// Host keeps only events of this host when set.
	Host string
	// Limit caps the number of events; zero means DefaultLimit.
	Limit int
}

// DefaultLimit is the number of events List returns when no limit is given.
const DefaultLimit = 50

// row is the database representation of an event.
type row struct {
	ID        string    `db:"id"`
	Host      string    `db:"host"`
	Package   string    `db:"package"`
	Version   string    `db:"version"`
	Action    string    `db:"action"`
	Outcome   string    `db:"outcome"`
	Detail    string    `db:"detail"`
	Actor     string    `db:"actor"`
	CreatedAt time.Time `db:"created_at"`
}

// SQLiteRepository stores events in a SQLite database file.
type SQLiteRepository struct {
	db *sqlx.DB
}

// Open connects to the database at path, creating it and its schema when needed.
func Open(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", "file:"+filepath.ToSlash(path)+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	// Parallel hosts write through one connection instead of fighting over the file lock.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Record stores event, assigning an id and timestamp when missing.
func (r *SQLiteRepository) Record(ctx context.Context, event *engine.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	event.Timestamp = event.Timestamp.UTC()

	if _, err := r.db.NamedExecContext(ctx, insertEventSQL, toRow(event)); err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}

	return nil
}

// List returns the newest events first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]*engine.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, listEventsSQL, filter.Host, filter.Host, limit); err != nil {
		return nil, fmt.Errorf("select history events: %w", err)
	}

	events := make([]*engine.Event, 0, len(rows))
	for i := range rows {
		events = append(events, fromRow(&rows[i]))
	}

	return events, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func toRow(e *engine.Event) *row {
	return &row{
		ID:        e.ID,
		Host:      e.Host,
		Package:   e.Package,
		Version:   e.Version,
		Action:    string(e.Action),
		Outcome:   string(e.Outcome),
		Detail:    e.Detail,
		Actor:     e.Actor.String(),
		CreatedAt: e.Timestamp,
	}
}

func fromRow(r *row) *engine.Event {
	return &engine.Event{
		ID:        r.ID,
		Host:      r.Host,
		Package:   r.Package,
		Version:   r.Version,
		Action:    engine.Action(r.Action),
		Outcome:   engine.Outcome(r.Outcome),
		Detail:    r.Detail,
		Actor:     parseActor(r.Actor),
		Timestamp: r.CreatedAt.UTC(),
	}
}

func parseActor(s string) *engine.Actor {
	if s == "" {
		return nil
	}

	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '@' {
			return &engine.Actor{Username: s[:i], Hostname: s[i+1:]}
		}
	}

	return &engine.Actor{Username: s}
}

// Nop discards events. It stands in when the ledger is disabled.
type Nop struct{}

// Record implements Repository.
func (Nop) Record(context.Context, *engine.Event) error { return nil }

// List implements Repository.
func (Nop) List(context.Context, Filter) ([]*engine.Event, error) { return nil, nil }

// Close implements Repository.
func (Nop) Close() error { return nil }
