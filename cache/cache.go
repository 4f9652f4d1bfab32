// Package cache stores compiled macro files in SQLite so that unchanged
// files are not recompiled. Entries are keyed by a hash of the source text
// and of the routine names declared before compiling it; programs are kept
// in their CBOR wire form.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chazu/nmacro/compiler"
	"github.com/chazu/nmacro/compiler/hash"
	"github.com/chazu/nmacro/pkg/bytecode"
	"github.com/chazu/nmacro/pkg/symtab"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("nmacro.cache")

// ErrNotFound indicates the requested file isn't cached.
var ErrNotFound = errors.New("cache: entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id          TEXT PRIMARY KEY,
	source_hash TEXT NOT NULL,
	compiled_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS units (
	file_id      TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	name         TEXT NOT NULL,
	start        INTEGER NOT NULL,
	program      BLOB NOT NULL,
	program_hash TEXT NOT NULL,
	PRIMARY KEY (file_id, seq)
);`

// Store is a compiled-file cache backed by a SQLite database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Entry describes one cached file.
type Entry struct {
	Key        string
	SourceHash string
	Units      int
	CompiledAt time.Time
}

// Open opens or creates the database at path. The special path ":memory:"
// keeps the cache in memory.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	log.Debugf("opened %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Key identifies src compiled against a global table holding the given
// names. The order of globals does not matter.
func Key(src string, globals []string) string {
	names := append([]string(nil), globals...)
	sort.Strings(names)
	var sb strings.Builder
	fmt.Fprintf(&sb, "nmacro/%d\n", bytecode.WireVersion)
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte('\n')
	}
	sb.WriteByte(0)
	sb.WriteString(src)
	return hash.Hex(hash.HashSource(sb.String()))
}

// Put stores the compiled units of the file identified by key, replacing
// any previous entry.
func (s *Store) Put(ctx context.Context, key, src string, units []compiler.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", key); err != nil {
		return fmt.Errorf("cache: replacing %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO files (id, source_hash, compiled_at) VALUES (?, ?, ?)",
		key, hash.Hex(hash.HashSource(src)), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("cache: saving %s: %w", key, err)
	}
	for i, u := range units {
		data, err := bytecode.MarshalProgram(u.Program)
		if err != nil {
			return fmt.Errorf("cache: encoding unit %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO units (file_id, seq, name, start, program, program_hash) VALUES (?, ?, ?, ?, ?, ?)",
			key, i, u.Name, u.Offset, data, hash.Hex(hash.HashProgram(u.Program)),
		); err != nil {
			return fmt.Errorf("cache: saving unit %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: commit: %w", err)
	}
	log.Debugf("stored %s (%d units)", short(key), len(units))
	return nil
}

// Get loads the units stored under key. Global symbols are resolved in
// globals and routine names are declared there, as CompileFile would.
func (s *Store) Get(ctx context.Context, key string, globals *symtab.Table) ([]compiler.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var compiledAt int64
	err := s.db.QueryRowContext(ctx, "SELECT compiled_at FROM files WHERE id = ?", key).Scan(&compiledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cache: querying %s: %w", key, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, start, program, program_hash FROM units WHERE file_id = ? ORDER BY seq", key)
	if err != nil {
		return nil, fmt.Errorf("cache: querying units: %w", err)
	}
	defer rows.Close()

	units := []compiler.Unit{}
	for rows.Next() {
		var (
			u        compiler.Unit
			data     []byte
			wantHash string
		)
		if err := rows.Scan(&u.Name, &u.Offset, &data, &wantHash); err != nil {
			return nil, fmt.Errorf("cache: scanning unit: %w", err)
		}
		if u.Program, err = bytecode.UnmarshalProgram(data, globals); err != nil {
			return nil, fmt.Errorf("cache: unit %d of %s: %w", len(units), key, err)
		}
		if got := hash.Hex(hash.HashProgram(u.Program)); got != wantHash {
			return nil, fmt.Errorf("cache: unit %d of %s: program hash %s, want %s", len(units), key, got, wantHash)
		}
		if u.IsRoutine() && globals != nil {
			globals.Declare(u.Name)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: reading units: %w", err)
	}
	log.Debugf("hit %s (%d units)", short(key), len(units))
	return units, nil
}

// Delete removes the entry stored under key. Deleting a missing key is
// not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = ?", key); err != nil {
		return fmt.Errorf("cache: deleting %s: %w", key, err)
	}
	return nil
}

// Prune removes entries compiled before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE compiled_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("cache: pruning: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: pruning: %w", err)
	}
	log.Infof("pruned %d entries", n)
	return int(n), nil
}

// Entries lists the cached files, most recent first.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.source_hash, f.compiled_at, COUNT(u.seq)
		FROM files f LEFT JOIN units u ON u.file_id = f.id
		GROUP BY f.id
		ORDER BY f.compiled_at DESC, f.id`)
	if err != nil {
		return nil, fmt.Errorf("cache: listing: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			at int64
		)
		if err := rows.Scan(&e.Key, &e.SourceHash, &at, &e.Units); err != nil {
			return nil, fmt.Errorf("cache: scanning entry: %w", err)
		}
		e.CompiledAt = time.Unix(at, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CompileFile returns the compiled units of src, from the cache when an
// entry exists for it and otherwise by compiling it with c and storing the
// result. Everything in c's global table when the call is made is part of
// the key: a name defined by an earlier file turns a local into a global.
// hit reports whether the cache served the request. Compile errors are
// returned as is and are not cached.
func (s *Store) CompileFile(ctx context.Context, c *compiler.Compiler, src string) (units []compiler.Unit, hit bool, err error) {
	key := Key(src, c.Globals().Names())
	units, err = s.Get(ctx, key, c.Globals())
	switch {
	case err == nil:
		return units, true, nil
	case !errors.Is(err, ErrNotFound):
		// A damaged entry is recompiled and replaced.
		log.Warningf("discarding entry: %s", err)
	}

	units, err = c.CompileFile(src)
	if err != nil {
		return nil, false, err
	}
	if err := s.Put(ctx, key, src, units); err != nil {
		return nil, false, err
	}
	return units, false, nil
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
