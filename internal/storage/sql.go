package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
)

// Dialect captures the few differences between the SQL backends.
type Dialect struct {
	Name       string
	DriverName string
	// LockSuffix is appended to the SELECT inside Update.
	LockSuffix string
	// Numbered placeholders ($1, $2) instead of ?.
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite", DriverName: "sqlite"}
	Postgres = Dialect{Name: "postgres", DriverName: "postgres", LockSuffix: " FOR UPDATE", Numbered: true}
)

func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const maxUpdateAttempts = 3

// errVersionConflict means another writer committed between our read and write.
var errVersionConflict = errors.New("document version conflict")

// SQLStore keeps each document as a JSON body in one row, with a version
// column guarding concurrent Update calls.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
	now     func() time.Time
}

// NewSQLiteStore opens (creating if needed) a SQLite database file and
// applies migrations.
func NewSQLiteStore(dbPath string, logger *log.Logger) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	if err := RunMigrations(SQLite, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open(SQLite.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes transactions; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return newSQLStore(db, SQLite, logger), nil
}

// NewPostgresStore connects to dsn and applies migrations.
func NewPostgresStore(ctx context.Context, dsn string, logger *log.Logger) (*SQLStore, error) {
	if err := RunMigrations(Postgres, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open(Postgres.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return newSQLStore(db, Postgres, logger), nil
}

func newSQLStore(db *sql.DB, d Dialect, logger *log.Logger) *SQLStore {
	if logger == nil {
		logger = log.Default()
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		logger:  logger.WithComponent(log.ComponentStorage).With(log.FieldBackend, d.Name),
		now:     time.Now,
	}
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the handle for readiness probes.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Get(ctx context.Context, uid string) (*core.UserDocument, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT body FROM user_documents WHERE uid = ?`), uid).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return decodeDocument(body)
}

func (s *SQLStore) Set(ctx context.Context, uid string, doc *core.UserDocument) error {
	if err := checkUID(uid); err != nil {
		return err
	}
	cp := *doc
	now := s.now().UTC()
	touch(&cp, now)
	body, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO user_documents (uid, body, version, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			body = excluded.body,
			version = user_documents.version + 1,
			updated_at = excluded.updated_at`),
		uid, string(body), now, now)
	if err != nil {
		return fmt.Errorf("set document: %w", err)
	}

	s.logger.DebugContext(ctx, "Document written", log.FieldUserID, uid)
	return nil
}

// Update retries when a concurrent writer bumps the version first.
func (s *SQLStore) Update(ctx context.Context, uid string, fn Mutator) (*core.UserDocument, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		doc, err := s.updateOnce(ctx, uid, fn)
		if !errors.Is(err, errVersionConflict) || attempt == maxUpdateAttempts {
			return doc, err
		}
		s.logger.WarnContext(ctx, "Retrying document update after version conflict",
			log.FieldUserID, uid, "attempt", attempt)
	}
}

func (s *SQLStore) updateOnce(ctx context.Context, uid string, fn Mutator) (*core.UserDocument, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		body    []byte
		version int64
	)
	err = tx.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT body, version FROM user_documents WHERE uid = ?`+s.dialect.LockSuffix), uid).
		Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	doc, err := decodeDocument(body)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	touch(doc, now)
	if body, err = json.Marshal(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		s.dialect.rebind(`UPDATE user_documents SET body = ?, version = version + 1, updated_at = ? WHERE uid = ? AND version = ?`),
		string(body), now, uid, version)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return doc, nil
}

func (s *SQLStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid FROM user_documents ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}

func (s *SQLStore) CreateCredential(ctx context.Context, c Credential) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO credentials (email, uid, password_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		normalizeEmail(c.Email), c.UID, c.PasswordHash, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCredentialExists
	}
	return nil
}

func (s *SQLStore) CredentialByEmail(ctx context.Context, email string) (Credential, error) {
	var c Credential
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT email, uid, password_hash, created_at FROM credentials WHERE email = ?`),
		normalizeEmail(email)).
		Scan(&c.Email, &c.UID, &c.PasswordHash, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (s *SQLStore) DeleteCredential(ctx context.Context, email, uid string) error {
	_, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`DELETE FROM credentials WHERE email = ? AND uid = ?`),
		normalizeEmail(email), uid)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
