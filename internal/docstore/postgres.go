package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/tutordesk/corekit/internal/common"
	"github.com/tutordesk/corekit/internal/docstore/migrations"
)

const defaultPollInterval = 500 * time.Millisecond

// PostgresStore implements Store over a single JSONB-backed table. It is an
// adapter to the abstract document-store contract, not a database engine:
// each upsert bumps a version column, and subscriptions poll that version.
type PostgresStore struct {
	db           *sql.DB
	pollInterval time.Duration
	callTimeout  time.Duration
}

// NewPostgresStore opens the database, runs the embedded migrations and
// returns a ready store.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	s := &PostgresStore{db: db, pollInterval: defaultPollInterval}

	if err := s.RunMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return s, nil
}

// NewPostgresStoreWithDB wraps an existing handle without running
// migrations. Used by tests.
func NewPostgresStoreWithDB(db *sql.DB, pollInterval time.Duration) *PostgresStore {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &PostgresStore{db: db, pollInterval: pollInterval}
}

// SetCallTimeout bounds every store call. A timed-out write counts as a
// failure, so callers must keep their compensation idempotent (the write
// may still have landed).
func (s *PostgresStore) SetCallTimeout(d time.Duration) {
	s.callTimeout = d
}

func (s *PostgresStore) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return err
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	query := `SELECT doc FROM documents WHERE collection=$1 AND id=$2`

	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select document: %w", err)
	}

	return decodeDoc(raw)
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, id, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET
			doc = EXCLUDED.doc,
			version = documents.version + 1,
			updated_at = now();
	`
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, collection, id, raw)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	query := `
		UPDATE documents
		SET doc = doc || $3::jsonb, version = version + 1, updated_at = now()
		WHERE collection=$1 AND id=$2;
	`
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, collection, id, raw)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// fieldNamePattern restricts filter and order-by names to plain
// identifiers. Field names end up inside the SQL text (they address JSONB
// keys, not bind parameters), so anything else is rejected.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT doc FROM documents WHERE collection=$1`)

	args := []any{collection}
	for _, f := range q.Filters {
		if !fieldNamePattern.MatchString(f.Field) {
			return nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		args = append(args, asString(f.Value))
		fmt.Fprintf(&sb, " AND doc->>'%s' = $%d", f.Field, len(args))
	}
	if q.OrderBy != "" {
		if !fieldNamePattern.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		fmt.Fprintf(&sb, " ORDER BY doc->>'%s'", q.OrderBy)
		if q.Descending {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Subscribe polls the document's version column and delivers a fresh
// snapshot whenever it advances. Poll-based delivery keeps the push
// contract of the store interface without a change feed in the schema.
func (s *PostgresStore) Subscribe(collection, id string, onSnapshot func(Document), onError func(error)) Unsubscribe {
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		var lastVersion int64

		poll := func() {
			query := `SELECT doc, version FROM documents WHERE collection=$1 AND id=$2`

			var raw []byte
			var version int64
			err := s.db.QueryRowContext(context.Background(), query, collection, id).Scan(&raw, &version)
			if errors.Is(err, sql.ErrNoRows) {
				return
			}
			if err != nil {
				onError(fmt.Errorf("failed to poll document: %w", err))
				return
			}
			if version <= lastVersion {
				return
			}
			lastVersion = version

			doc, err := decodeDoc(raw)
			if err != nil {
				onError(err)
				return
			}
			onSnapshot(doc)
		}

		poll()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
	}
}

func decodeDoc(raw []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
