// Package mysql implements pkg/store.Store on top of database/sql and the
// github.com/go-sql-driver/mysql driver, following the prepared-statement,
// reconnect-and-reprepare pattern of the original worker implementation
// (original_source/worker.cpp's prepareStatements/databaseReconnected).
package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/go-sql-driver/mysql"

	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/store"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config configures a connection to the backing MySQL database.
type Config struct {
	Host      string
	User      string
	Password  string
	Database  string
	DirTable  string
	FileTable string
	DryRun    bool
	Logger    *logging.Logger
}

// Store is a MySQL-backed implementation of store.Store.
type Store struct {
	db        *sql.DB
	dirTable  string
	fileTable string
	dryRun    bool
	logger    *logging.Logger

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

// Open validates cfg, connects to the database, and prepares every
// statement the Store needs. It does not create the schema; call
// EnsureSchema for that.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DirTable == "" {
		cfg.DirTable = "fscrawl_directories"
	}
	if cfg.FileTable == "" {
		cfg.FileTable = "fscrawl_files"
	}
	if !identifierPattern.MatchString(cfg.DirTable) || !identifierPattern.MatchString(cfg.FileTable) {
		return nil, fmt.Errorf("%w: invalid table name", store.ErrQueryFailed)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=false&collation=utf8mb4_bin",
		cfg.User, cfg.Password, cfg.Host, cfg.Database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	s := &Store{
		db:        db,
		dirTable:  cfg.DirTable,
		fileTable: cfg.FileTable,
		dryRun:    cfg.DryRun,
		logger:    cfg.Logger,
		stmts:     make(map[string]*sql.Stmt),
	}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// prepareStatements (re)prepares every named statement this Store uses,
// discarding any previously prepared statements. Called on Open and again
// after a reconnect, mirroring the original's databaseReconnected.
func (s *Store) prepareStatements(ctx context.Context) error {
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	s.stmts = make(map[string]*sql.Stmt)

	queries := map[string]string{
		"getDirByID":    fmt.Sprintf("SELECT id, parent, name, size, UNIX_TIMESTAMP(date) FROM %s WHERE id = ?", s.dirTable),
		"getDirByName":  fmt.Sprintf("SELECT id, parent, name, size, UNIX_TIMESTAMP(date) FROM %s WHERE parent = ? AND name = ?", s.dirTable),
		"getFileByID":   fmt.Sprintf("SELECT id, parent, name, size, UNIX_TIMESTAMP(date), hash FROM %s WHERE id = ?", s.fileTable),
		"getFileByName": fmt.Sprintf("SELECT id, parent, name, size, UNIX_TIMESTAMP(date), hash FROM %s WHERE parent = ? AND name = ?", s.fileTable),
		"listChildDirs": fmt.Sprintf("SELECT id, parent, name, size, UNIX_TIMESTAMP(date) FROM %s WHERE parent = ?", s.dirTable),
		"listChildFiles": fmt.Sprintf("SELECT id, parent, name, size, UNIX_TIMESTAMP(date), hash FROM %s WHERE parent = ?", s.fileTable),
		"insertDir":            fmt.Sprintf("INSERT INTO %s (parent, name, size, date) VALUES (?, ?, ?, FROM_UNIXTIME(?))", s.dirTable),
		"insertFile":           fmt.Sprintf("INSERT INTO %s (parent, name, size, date, hash) VALUES (?, ?, ?, FROM_UNIXTIME(?), ?)", s.fileTable),
		"updateDir":            fmt.Sprintf("UPDATE %s SET parent = ?, name = ?, size = ?, date = FROM_UNIXTIME(?) WHERE id = ?", s.dirTable),
		"updateFile":           fmt.Sprintf("UPDATE %s SET parent = ?, name = ?, size = ?, date = FROM_UNIXTIME(?), hash = ? WHERE id = ?", s.fileTable),
		"deleteFile":           fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.fileTable),
		"deleteFilesOfParent":  fmt.Sprintf("DELETE FROM %s WHERE parent = ?", s.fileTable),
		"deleteDir":            fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.dirTable),
		"dropAllDirs":          fmt.Sprintf("DELETE FROM %s", s.dirTable),
		"dropAllFiles":         fmt.Sprintf("DELETE FROM %s", s.fileTable),
		"queryAllDirs":         fmt.Sprintf("SELECT id, parent, name, size, UNIX_TIMESTAMP(date) FROM %s", s.dirTable),
		"queryAllFiles":        fmt.Sprintf("SELECT id, parent, name, size, UNIX_TIMESTAMP(date), hash FROM %s", s.fileTable),
	}

	for name, query := range queries {
		stmt, err := s.db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("%w: prepare %s: %v", store.ErrUnavailable, name, err)
		}
		s.stmts[name] = stmt
	}

	return nil
}

// isConnErr reports whether err looks like a lost-connection error worth
// reconnecting over, as opposed to a query-shaped failure (bad SQL,
// constraint violation).
func isConnErr(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

// withRetry runs fn once; if it fails with a connection-shaped error, it
// pings the database, re-prepares every statement, and retries fn exactly
// once before giving up with ErrUnavailable.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn()
	if err == nil || !isConnErr(err) {
		return err
	}

	if s.logger != nil {
		s.logger.Warnf("store: lost connection, reconnecting: %v", err)
	}

	if pingErr := s.db.PingContext(ctx); pingErr != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, pingErr)
	}
	if prepErr := s.prepareStatements(ctx); prepErr != nil {
		return prepErr
	}

	if err := fn(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) stmt(name string) *sql.Stmt {
	return s.stmts[name]
}

// EnsureSchema creates both backing tables if they do not already exist,
// using the same column shapes (utf8mb4_bin collation, BIGINT UNSIGNED
// size, VARCHAR(40) hash, INDEX(parent)) as the original schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.withRetry(ctx, func() error {
		dirDDL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			parent INT UNSIGNED NOT NULL DEFAULT 0,
			name VARCHAR(255) NOT NULL,
			size BIGINT UNSIGNED NOT NULL DEFAULT 0,
			date DATETIME NOT NULL,
			INDEX (parent)
		) ENGINE=InnoDB CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`, s.dirTable)

		fileDDL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			parent INT UNSIGNED NOT NULL DEFAULT 0,
			name VARCHAR(255) NOT NULL,
			size BIGINT UNSIGNED NOT NULL DEFAULT 0,
			date DATETIME NOT NULL,
			hash VARCHAR(40) NOT NULL DEFAULT '',
			INDEX (parent)
		) ENGINE=InnoDB CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`, s.fileTable)

		if _, err := s.db.ExecContext(ctx, dirDDL); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, fileDDL); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) GetDirByID(ctx context.Context, id uint32) (*store.DirectoryRecord, error) {
	var rec store.DirectoryRecord
	var found bool
	err := s.withRetry(ctx, func() error {
		row := s.stmt("getDirByID").QueryRowContext(ctx, id)
		if err := row.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetDirByName(ctx context.Context, parent uint32, name string) (*store.DirectoryRecord, error) {
	var rec store.DirectoryRecord
	var found bool
	err := s.withRetry(ctx, func() error {
		row := s.stmt("getDirByName").QueryRowContext(ctx, parent, name)
		if err := row.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetFileByID(ctx context.Context, id uint32) (*store.FileRecord, error) {
	var rec store.FileRecord
	var found bool
	err := s.withRetry(ctx, func() error {
		row := s.stmt("getFileByID").QueryRowContext(ctx, id)
		if err := row.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime, &rec.Hash); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetFileByName(ctx context.Context, parent uint32, name string) (*store.FileRecord, error) {
	var rec store.FileRecord
	var found bool
	err := s.withRetry(ctx, func() error {
		row := s.stmt("getFileByName").QueryRowContext(ctx, parent, name)
		if err := row.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime, &rec.Hash); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListChildren(ctx context.Context, parent uint32) ([]store.DirectoryRecord, []store.FileRecord, error) {
	var dirs []store.DirectoryRecord
	var files []store.FileRecord

	err := s.withRetry(ctx, func() error {
		dirs = nil
		rows, err := s.stmt("listChildDirs").QueryContext(ctx, parent)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec store.DirectoryRecord
			if err := rows.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime); err != nil {
				return err
			}
			dirs = append(dirs, rec)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		files = nil
		frows, err := s.stmt("listChildFiles").QueryContext(ctx, parent)
		if err != nil {
			return err
		}
		defer frows.Close()
		for frows.Next() {
			var rec store.FileRecord
			if err := frows.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime, &rec.Hash); err != nil {
				return err
			}
			files = append(files, rec)
		}
		return frows.Err()
	})
	if err != nil {
		return nil, nil, err
	}
	return dirs, files, nil
}

func (s *Store) InsertDir(ctx context.Context, rec store.DirectoryRecord) (uint32, error) {
	if s.dryRun {
		return store.NoID, nil
	}
	var id uint32
	err := s.withRetry(ctx, func() error {
		res, err := s.stmt("insertDir").ExecContext(ctx, rec.Parent, rec.Name, rec.Size, rec.MTime)
		if err != nil {
			return err
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = uint32(lastID)
		return nil
	})
	return id, err
}

func (s *Store) InsertFile(ctx context.Context, rec store.FileRecord) (uint32, error) {
	if s.dryRun {
		return store.NoID, nil
	}
	var id uint32
	err := s.withRetry(ctx, func() error {
		res, err := s.stmt("insertFile").ExecContext(ctx, rec.Parent, rec.Name, rec.Size, rec.MTime, rec.Hash)
		if err != nil {
			return err
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = uint32(lastID)
		return nil
	})
	return id, err
}

func (s *Store) UpdateDir(ctx context.Context, rec store.DirectoryRecord) error {
	if s.dryRun {
		return nil
	}
	return s.withRetry(ctx, func() error {
		_, err := s.stmt("updateDir").ExecContext(ctx, rec.Parent, rec.Name, rec.Size, rec.MTime, rec.ID)
		return err
	})
}

func (s *Store) UpdateFile(ctx context.Context, rec store.FileRecord) error {
	if s.dryRun {
		return nil
	}
	return s.withRetry(ctx, func() error {
		_, err := s.stmt("updateFile").ExecContext(ctx, rec.Parent, rec.Name, rec.Size, rec.MTime, rec.Hash, rec.ID)
		return err
	})
}

func (s *Store) DeleteFile(ctx context.Context, id uint32) error {
	if s.dryRun {
		return nil
	}
	return s.withRetry(ctx, func() error {
		_, err := s.stmt("deleteFile").ExecContext(ctx, id)
		return err
	})
}

func (s *Store) DeleteFilesOfParent(ctx context.Context, parent uint32) error {
	if s.dryRun {
		return nil
	}
	return s.withRetry(ctx, func() error {
		_, err := s.stmt("deleteFilesOfParent").ExecContext(ctx, parent)
		return err
	})
}

// DeleteDir deletes id and every descendant directory and file beneath it.
func (s *Store) DeleteDir(ctx context.Context, id uint32) error {
	if s.dryRun {
		return nil
	}
	return s.withRetry(ctx, func() error {
		return s.deleteDirRecursive(ctx, id, make(map[uint32]bool))
	})
}

// deleteDirRecursive deletes id and its descendants using the already
// prepared statements directly, without going through the public
// DeleteFilesOfParent/DeleteDir methods (which would re-enter withRetry and
// deadlock on s.mu). visited guards against the corrupt, cyclic parent
// chains Verifier exists to repair: a two-directory cycle a<->b makes each
// the other's "child" too, so without this guard the walk below would
// recurse forever.
func (s *Store) deleteDirRecursive(ctx context.Context, id uint32, visited map[uint32]bool) error {
	if visited[id] {
		return nil
	}
	visited[id] = true

	rows, err := s.stmt("listChildDirs").QueryContext(ctx, id)
	if err != nil {
		return err
	}
	var children []uint32
	for rows.Next() {
		var rec store.DirectoryRecord
		if err := rows.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime); err != nil {
			rows.Close()
			return err
		}
		children = append(children, rec.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if _, err := s.stmt("deleteFilesOfParent").ExecContext(ctx, id); err != nil {
		return err
	}
	for _, childID := range children {
		if err := s.deleteDirRecursive(ctx, childID, visited); err != nil {
			return err
		}
	}
	_, err = s.stmt("deleteDir").ExecContext(ctx, id)
	return err
}

func (s *Store) DropAll(ctx context.Context) error {
	if s.dryRun {
		return nil
	}
	return s.withRetry(ctx, func() error {
		if _, err := s.stmt("dropAllFiles").ExecContext(ctx); err != nil {
			return err
		}
		_, err := s.stmt("dropAllDirs").ExecContext(ctx)
		return err
	})
}

func (s *Store) QueryAllDirs(ctx context.Context, fn func(store.DirectoryRecord) error) error {
	return s.withRetry(ctx, func() error {
		rows, err := s.stmt("queryAllDirs").QueryContext(ctx)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec store.DirectoryRecord
			if err := rows.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime); err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

func (s *Store) QueryAllFiles(ctx context.Context, fn func(store.FileRecord) error) error {
	return s.withRetry(ctx, func() error {
		rows, err := s.stmt("queryAllFiles").QueryContext(ctx)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec store.FileRecord
			if err := rows.Scan(&rec.ID, &rec.Parent, &rec.Name, &rec.Size, &rec.MTime, &rec.Hash); err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	return s.db.Close()
}
