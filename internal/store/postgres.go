package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements DocumentStore on a single JSONB documents table
// using pgx/v5. Query conditions compile to SQL against the data column;
// UpdateDocumentTxn serializes per-path writes with SELECT ... FOR UPDATE.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateDocument(ctx context.Context, path string, data map[string]any) (string, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (path, collection, data, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())`, path, collection, raw)
	if err != nil {
		if isDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: %s", ErrDuplicatePath, path)
		}
		return "", fmt.Errorf("create document: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, path string) (map[string]any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE path = $1`, path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) SetDocument(ctx context.Context, path string, data map[string]any) error {
	collection, _, err := SplitPath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (path, collection, data, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		path, collection, raw)
	if err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, path string, partial map[string]any) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("marshal partial document: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data = data || $2::jsonb, updated_at = NOW() WHERE path = $1`,
		path, raw)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, path string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

func (s *PostgresStore) QueryDocuments(ctx context.Context, collectionPath string, conditions []Condition) ([]map[string]any, error) {
	clauses := []string{"collection = $1"}
	args := []any{collectionPath}

	for _, c := range conditions {
		clause, newArgs, err := compileCondition(c, len(args)+1)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, newArgs...)
	}

	query := `SELECT data FROM documents WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateDocumentTxn(ctx context.Context, path string, fn UpdateFunc) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT data FROM documents WHERE path = $1 FOR UPDATE`, path).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if err != nil {
			return fmt.Errorf("lock document: %w", err)
		}

		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("unmarshal document: %w", err)
		}

		updated, err := fn(doc)
		if err != nil {
			return err
		}

		newRaw, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE documents SET data = $2, updated_at = NOW() WHERE path = $1`,
			path, newRaw)
		if err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		return nil
	})
}

// compileCondition turns one condition into a SQL clause over the JSONB
// data column. Field names and values bind as parameters; nothing is
// interpolated.
func compileCondition(c Condition, argIdx int) (string, []any, error) {
	if !IsValidOperator(c.Operator) {
		return "", nil, fmt.Errorf("unsupported query operator %q", c.Operator)
	}

	value := normalize(c.Value)
	field := fmt.Sprintf("$%d::text", argIdx)
	param := fmt.Sprintf("$%d::jsonb", argIdx+1)

	marshal := func(v any) ([]byte, error) {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal condition value: %w", err)
		}
		return raw, nil
	}

	switch c.Operator {
	case OpEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		raw, err := marshal(value)
		if err != nil {
			return "", nil, err
		}
		sqlOp := string(c.Operator)
		if c.Operator == OpEqual {
			sqlOp = "="
		}
		clause := fmt.Sprintf("data -> %s %s %s", field, sqlOp, param)
		return clause, []any{c.Field, raw}, nil

	case OpNotEqual:
		raw, err := marshal(value)
		if err != nil {
			return "", nil, err
		}
		clause := fmt.Sprintf("data ? %s AND data -> %s <> %s", field, field, param)
		return clause, []any{c.Field, raw}, nil

	case OpArrayContains:
		raw, err := marshal([]any{value})
		if err != nil {
			return "", nil, err
		}
		clause := fmt.Sprintf("data -> %s @> %s", field, param)
		return clause, []any{c.Field, raw}, nil

	case OpArrayContainsAny:
		raw, err := marshal(value)
		if err != nil {
			return "", nil, err
		}
		clause := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements(%s) AS w(v) WHERE data -> %s @> jsonb_build_array(w.v))",
			param, field)
		return clause, []any{c.Field, raw}, nil

	case OpIn:
		raw, err := marshal(value)
		if err != nil {
			return "", nil, err
		}
		clause := fmt.Sprintf("%s @> jsonb_build_array(data -> %s)", param, field)
		return clause, []any{c.Field, raw}, nil

	case OpNotIn:
		raw, err := marshal(value)
		if err != nil {
			return "", nil, err
		}
		clause := fmt.Sprintf(
			"data ? %s AND NOT (%s @> jsonb_build_array(data -> %s))", field, param, field)
		return clause, []any{c.Field, raw}, nil
	}
	return "", nil, fmt.Errorf("unsupported query operator %q", c.Operator)
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check that PostgresStore implements DocumentStore.
var _ DocumentStore = (*PostgresStore)(nil)
