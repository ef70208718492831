package pages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx used by PgStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the pages table. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS pages (
	id          UUID PRIMARY KEY,
	parent_id   UUID NOT NULL,
	template    TEXT NOT NULL,
	name        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	fields      JSONB NOT NULL DEFAULT '{}'::jsonb,
	hidden      BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	modified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT pages_parent_name_key UNIQUE (parent_id, name)
);
CREATE INDEX IF NOT EXISTS pages_parent_title_idx ON pages (parent_id, title) WHERE NOT hidden;
`

const pageColumns = `id, parent_id, template, name, fields, hidden, created_at, modified_at`

// PgStore stores pages in Postgres, one row per page with field values in JSONB.
type PgStore struct {
	db  DBTX
	now func() time.Time
}

// NewPgStore wraps a pool, connection or transaction.
func NewPgStore(db DBTX) *PgStore {
	return &PgStore{db: db, now: time.Now}
}

// EnsureSchema creates the pages table when missing.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure pages schema: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Page, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, pgUUID(id))
	return scanPage(row, fmt.Sprintf("id %s", id))
}

func (s *PgStore) FindByName(ctx context.Context, parentID uuid.UUID, name string) (*Page, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE parent_id = $1 AND name = $2`,
		pgUUID(parentID), name)
	return scanPage(row, fmt.Sprintf("name %q", name))
}

func (s *PgStore) FindByTitle(ctx context.Context, parentID uuid.UUID, title string) (*Page, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+pageColumns+` FROM pages
		 WHERE parent_id = $1 AND lower(title) = lower($2) AND NOT hidden
		 ORDER BY created_at, id LIMIT 1`,
		pgUUID(parentID), title)
	return scanPage(row, fmt.Sprintf("title %q", title))
}

func (s *PgStore) NameExists(ctx context.Context, parentID uuid.UUID, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pages WHERE parent_id = $1 AND name = $2)`,
		pgUUID(parentID), name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check page name %q: %w", name, err)
	}
	return exists, nil
}

func (s *PgStore) Save(ctx context.Context, p *Page) (SaveResult, error) {
	if err := prepareSave(p); err != nil {
		return SaveResult{}, err
	}

	fields, err := encodeFields(p.fields)
	if err != nil {
		return SaveResult{}, err
	}
	now := s.now().UTC()
	changes := p.Changes()

	if p.IsNew() {
		id := uuid.New()
		_, err := s.db.Exec(ctx,
			`INSERT INTO pages (id, parent_id, template, name, title, fields, hidden, created_at, modified_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			pgUUID(id), pgUUID(p.ParentID), p.Template, p.Name, p.Title(), fields, p.Hidden,
			pgtype.Timestamptz{Time: now, Valid: true})
		if err != nil {
			return SaveResult{}, mapWriteError(err, p.Name)
		}
		p.ID = id
		p.Created, p.Modified = now, now
		p.resetChanges()
		return SaveResult{Created: true, Written: true, Changes: changes}, nil
	}

	if len(changes) == 0 {
		return SaveResult{}, nil
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE pages SET parent_id = $2, name = $3, title = $4, fields = $5, hidden = $6, modified_at = $7
		 WHERE id = $1`,
		pgUUID(p.ID), pgUUID(p.ParentID), p.Name, p.Title(), fields, p.Hidden,
		pgtype.Timestamptz{Time: now, Valid: true})
	if err != nil {
		return SaveResult{}, mapWriteError(err, p.Name)
	}
	if tag.RowsAffected() == 0 {
		return SaveResult{}, fmt.Errorf("%w: id %s", ErrNotFound, p.ID)
	}
	p.Modified = now
	p.resetChanges()
	return SaveResult{Written: true, Changes: changes}, nil
}

func scanPage(row pgx.Row, what string) (*Page, error) {
	var (
		id, parent        pgtype.UUID
		created, modified pgtype.Timestamptz
		raw               []byte
		p                 Page
	)
	err := row.Scan(&id, &parent, &p.Template, &p.Name, &raw, &p.Hidden, &created, &modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	if err != nil {
		return nil, fmt.Errorf("load page %s: %w", what, err)
	}

	p.ID = uuid.UUID(id.Bytes)
	p.ParentID = uuid.UUID(parent.Bytes)
	p.Created = created.Time
	p.Modified = modified.Time

	tpl, _ := GetTemplate(p.Template)
	if p.fields, err = decodeFields(raw, tpl); err != nil {
		return nil, fmt.Errorf("load page %s: %w", what, err)
	}
	return &p, nil
}

// encodeFields stores references as UUID strings and everything else as-is.
func encodeFields(fields map[string]any) ([]byte, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch x := v.(type) {
		case uuid.UUID:
			out[k] = []string{x.String()}
		case []uuid.UUID:
			ids := make([]string, len(x))
			for i, id := range x {
				ids[i] = id.String()
			}
			out[k] = ids
		default:
			out[k] = v
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode page fields: %w", err)
	}
	return b, nil
}

// decodeFields restores typed values using the template. References always
// come back as []uuid.UUID.
func decodeFields(raw []byte, tpl Template) (map[string]any, error) {
	var stored map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("decode page fields: %w", err)
		}
	}

	fields := make(map[string]any, len(stored))
	for name, msg := range stored {
		fd, _ := tpl.Field(name)
		switch fd.Type {
		case FieldFiles, FieldPage:
			var list []string
			if err := json.Unmarshal(msg, &list); err != nil {
				return nil, fmt.Errorf("decode field %s: %w", name, err)
			}
			if fd.Type == FieldFiles {
				fields[name] = list
				continue
			}
			ids := make([]uuid.UUID, 0, len(list))
			for _, s := range list {
				id, err := uuid.Parse(s)
				if err != nil {
					return nil, fmt.Errorf("decode field %s: %w", name, err)
				}
				ids = append(ids, id)
			}
			fields[name] = ids
		default:
			var s *string
			if err := json.Unmarshal(msg, &s); err != nil {
				return nil, fmt.Errorf("decode field %s: %w", name, err)
			}
			if s != nil {
				fields[name] = *s
			}
		}
	}
	return fields, nil
}

func mapWriteError(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	return fmt.Errorf("write page %q: %w", name, err)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
