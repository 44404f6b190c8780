// Package postgres is the PostgreSQL record store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/blackmichael/live-comments/internal/domain"
)

// Postgres implements domain.RecordStore in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings it to ensure the connection is
// working. The caller should call Close when done.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{bun: bun.NewDB(sqlDB, pgdialect.New())}, nil
}

// Close closes the underlying database connection.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (pg *Postgres) EnsureSchema(ctx context.Context) error {
	for _, model := range []any{(*post)(nil), (*comment)(nil)} {
		if _, err := pg.bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, err := pg.bun.NewCreateIndex().
		Model((*comment)(nil)).
		Index("comments_post_id_inserted_at_idx").
		Column("post_id", "inserted_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// validID reports whether id can name a row. Anything else cannot match and
// would be rejected by the uuid column type.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ListComments returns the comments of a thread, newest first.
func (pg *Postgres) ListComments(ctx context.Context, threadID string) ([]domain.Comment, error) {
	if !validID(threadID) {
		return nil, nil
	}
	var rows []comment
	err := pg.bun.NewSelect().
		Model(&rows).
		Where("post_id = ?", threadID).
		Order("inserted_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}

	out := make([]domain.Comment, len(rows))
	for i, c := range rows {
		out[i] = c.domainComment()
	}
	return out, nil
}

// GetComment returns a comment by ID.
func (pg *Postgres) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	if !validID(id) {
		return domain.Comment{}, domain.ErrNotFound
	}
	var c comment
	err := pg.bun.NewSelect().Model(&c).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Comment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Comment{}, fmt.Errorf("select comment: %w", err)
	}
	return c.domainComment(), nil
}

// CreateComment inserts a comment. The returned comment holds the generated
// ID and insertion time.
func (pg *Postgres) CreateComment(ctx context.Context, nc domain.NewComment) (domain.Comment, error) {
	if err := domain.Validate(nc); err != nil {
		return domain.Comment{}, err
	}
	if !validID(nc.ThreadID) {
		return domain.Comment{}, fmt.Errorf("%w: thread id %q", domain.ErrInvalidInput, nc.ThreadID)
	}
	c := &comment{
		PostID:   nc.ThreadID,
		UserID:   nc.AuthorID,
		UserName: nc.AuthorName,
		Text:     nc.Body,
	}
	if _, err := pg.bun.NewInsert().Model(c).Returning("*").Exec(ctx); err != nil {
		return domain.Comment{}, fmt.Errorf("insert: %w", err)
	}
	return c.domainComment(), nil
}

// UpdateCommentBody replaces the body of comment id.
func (pg *Postgres) UpdateCommentBody(ctx context.Context, id, body string) (domain.Comment, error) {
	if !validID(id) {
		return domain.Comment{}, domain.ErrNotFound
	}
	var c comment
	err := pg.bun.NewUpdate().
		Model(&c).
		Set("text = ?", body).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Comment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return c.domainComment(), nil
}

// DeleteComment removes comment id.
func (pg *Postgres) DeleteComment(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	if _, err := pg.bun.NewDelete().Model((*comment)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// DeleteThreadComments removes every comment of a thread.
func (pg *Postgres) DeleteThreadComments(ctx context.Context, threadID string) (int64, error) {
	if !validID(threadID) {
		return 0, nil
	}
	res, err := pg.bun.NewDelete().Model((*comment)(nil)).Where("post_id = ?", threadID).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete thread comments: %w", err)
	}
	return res.RowsAffected()
}

// ListPosts returns all posts, newest first.
func (pg *Postgres) ListPosts(ctx context.Context) ([]domain.Post, error) {
	var rows []post
	if err := pg.bun.NewSelect().Model(&rows).Order("inserted_at DESC", "id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}

	out := make([]domain.Post, len(rows))
	for i, p := range rows {
		out[i] = p.domainPost()
	}
	return out, nil
}

// GetPost returns a post by ID.
func (pg *Postgres) GetPost(ctx context.Context, id string) (domain.Post, error) {
	if !validID(id) {
		return domain.Post{}, domain.ErrNotFound
	}
	var p post
	err := pg.bun.NewSelect().Model(&p).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("select post: %w", err)
	}
	return p.domainPost(), nil
}

// CreatePost inserts a post. The returned post holds the generated ID and
// insertion time.
func (pg *Postgres) CreatePost(ctx context.Context, np domain.NewPost) (domain.Post, error) {
	if err := domain.Validate(np); err != nil {
		return domain.Post{}, err
	}
	p := &post{
		OwnerID:     np.OwnerID,
		OwnerName:   np.OwnerName,
		ImageRef:    np.ImageRef,
		Description: np.Description,
	}
	if _, err := pg.bun.NewInsert().Model(p).Returning("*").Exec(ctx); err != nil {
		return domain.Post{}, fmt.Errorf("insert: %w", err)
	}
	return p.domainPost(), nil
}

// DeletePost removes post id.
func (pg *Postgres) DeletePost(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	if _, err := pg.bun.NewDelete().Model((*post)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}
