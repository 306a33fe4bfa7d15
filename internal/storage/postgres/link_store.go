// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
)

// foreignKeyViolation is the SQLSTATE raised when an attachment references a
// missing link.
const foreignKeyViolation = "23503"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// LinkStore persists links and attachments in Postgres.
type LinkStore struct {
	pool querier
}

// NewPool opens a pgx pool from cfg.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// NewLinkStore constructs a store from an existing pool (pgxpool or pgxmock).
func NewLinkStore(pool querier) (*LinkStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LinkStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *LinkStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateLink inserts a link row.
func (s *LinkStore) CreateLink(ctx context.Context, link linkpreview.Link) error {
	meta, err := encodeMetaData(link.MetaData)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO links (id, url, meta_data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, link.ID, link.URL, meta, link.CreatedAt, link.UpdatedAt); err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// UpdateLink overwrites url and meta_data of an existing link.
func (s *LinkStore) UpdateLink(ctx context.Context, link linkpreview.Link) error {
	meta, err := encodeMetaData(link.MetaData)
	if err != nil {
		return err
	}
	const query = `
UPDATE links SET url = $2, meta_data = $3, updated_at = $4
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, link.ID, link.URL, meta, link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link %s: %w", link.ID, linkpreview.ErrNotFound)
	}
	return nil
}

const selectLinks = `
SELECT l.id, l.url, l.meta_data, l.created_at, l.updated_at,
       a.blob_uri, a.filename, a.content_type, a.byte_size, a.checksum, a.created_at
FROM links l
LEFT JOIN link_attachments a ON a.link_id = l.id AND a.name = 'thumbnail'`

// GetLink loads a link and its thumbnail.
func (s *LinkStore) GetLink(ctx context.Context, id string) (linkpreview.Link, error) {
	row := s.pool.QueryRow(ctx, selectLinks+"\nWHERE l.id = $1", id)
	link, err := scanLink(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return linkpreview.Link{}, fmt.Errorf("link %s: %w", id, linkpreview.ErrNotFound)
	}
	if err != nil {
		return linkpreview.Link{}, fmt.Errorf("select link: %w", err)
	}
	return link, nil
}

// ListLinks returns links newest first. A non-positive limit returns all.
func (s *LinkStore) ListLinks(ctx context.Context, limit int) ([]linkpreview.Link, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx, selectLinks+"\nORDER BY l.created_at DESC, l.id DESC\nLIMIT $1", limitArg)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var out []linkpreview.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return out, nil
}

// AttachThumbnail upserts the link's single thumbnail row.
func (s *LinkStore) AttachThumbnail(ctx context.Context, linkID string, att linkpreview.Attachment) error {
	name := att.Name
	if name == "" {
		name = linkpreview.ThumbnailAttachmentName
	}
	const query = `
INSERT INTO link_attachments (link_id, name, blob_uri, filename, content_type, byte_size, checksum, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (link_id, name) DO UPDATE
SET blob_uri = EXCLUDED.blob_uri,
    filename = EXCLUDED.filename,
    content_type = EXCLUDED.content_type,
    byte_size = EXCLUDED.byte_size,
    checksum = EXCLUDED.checksum,
    created_at = EXCLUDED.created_at`
	_, err := s.pool.Exec(ctx, query,
		linkID, name, att.BlobURI, att.Filename, att.ContentType, att.ByteSize, att.Checksum, att.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("link %s: %w", linkID, linkpreview.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("upsert attachment: %w", err)
	}
	return nil
}

func scanLink(row pgx.Row) (linkpreview.Link, error) {
	var (
		link        linkpreview.Link
		meta        []byte
		blobURI     *string
		filename    *string
		contentType *string
		byteSize    *int64
		checksum    *string
		attachedAt  *time.Time
	)
	if err := row.Scan(
		&link.ID, &link.URL, &meta, &link.CreatedAt, &link.UpdatedAt,
		&blobURI, &filename, &contentType, &byteSize, &checksum, &attachedAt,
	); err != nil {
		return linkpreview.Link{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &link.MetaData); err != nil {
			return linkpreview.Link{}, fmt.Errorf("decode meta_data: %w", err)
		}
	}
	if blobURI != nil {
		link.Thumbnail = &linkpreview.Attachment{
			Name:        linkpreview.ThumbnailAttachmentName,
			BlobURI:     *blobURI,
			Filename:    deref(filename),
			ContentType: deref(contentType),
			Checksum:    deref(checksum),
		}
		if byteSize != nil {
			link.Thumbnail.ByteSize = *byteSize
		}
		if attachedAt != nil {
			link.Thumbnail.CreatedAt = *attachedAt
		}
	}
	return link, nil
}

func encodeMetaData(m linkpreview.MetaData) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode meta_data: %w", err)
	}
	return data, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
