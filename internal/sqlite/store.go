// Package sqlite is an embedded record store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/blackmichael/live-comments/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Store implements domain.RecordStore on a single SQLite database.
// Timestamps are stored as Unix milliseconds.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema. Use
// ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

type scanner interface {
	Scan(dest ...any) error
}

const commentColumns = `id, post_id, user_id, user_name, text, inserted_at`

func scanComment(row scanner) (domain.Comment, error) {
	var (
		c  domain.Comment
		ms int64
	)
	if err := row.Scan(&c.ID, &c.ThreadID, &c.AuthorID, &c.AuthorName, &c.Body, &ms); err != nil {
		return domain.Comment{}, err
	}
	c.InsertedAt = time.UnixMilli(ms).UTC()
	return c, nil
}

// ListComments returns the comments of a thread, newest first.
func (s *Store) ListComments(ctx context.Context, threadID string) ([]domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE post_id = ?
		ORDER BY inserted_at DESC, id DESC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query comments (thread=%s): %w", threadID, err)
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// GetComment returns a comment by ID.
func (s *Store) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Comment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Comment{}, fmt.Errorf("get comment %s: %w", id, err)
	}
	return c, nil
}

// CreateComment inserts a new comment with a generated ID.
func (s *Store) CreateComment(ctx context.Context, nc domain.NewComment) (domain.Comment, error) {
	if err := domain.Validate(nc); err != nil {
		return domain.Comment{}, err
	}
	id, err := newID()
	if err != nil {
		return domain.Comment{}, err
	}

	c := domain.Comment{
		ID:         id,
		ThreadID:   nc.ThreadID,
		AuthorID:   nc.AuthorID,
		AuthorName: nc.AuthorName,
		Body:       nc.Body,
		InsertedAt: s.timestamp(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comments (`+commentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ThreadID, c.AuthorID, c.AuthorName, c.Body, c.InsertedAt.UnixMilli(),
	)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

// UpdateCommentBody replaces the body of comment id.
func (s *Store) UpdateCommentBody(ctx context.Context, id, body string) (domain.Comment, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET text = ? WHERE id = ?`, body, id)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("update comment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Comment{}, fmt.Errorf("update comment %s: %w", id, err)
	}
	if n == 0 {
		return domain.Comment{}, domain.ErrNotFound
	}
	return s.GetComment(ctx, id)
}

// DeleteComment removes comment id.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete comment %s: %w", id, err)
	}
	return nil
}

// DeleteThreadComments removes every comment of a thread.
func (s *Store) DeleteThreadComments(ctx context.Context, threadID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, threadID)
	if err != nil {
		return 0, fmt.Errorf("delete thread comments (thread=%s): %w", threadID, err)
	}
	return res.RowsAffected()
}

const postColumns = `id, owner_id, owner_name, image_ref, description, inserted_at`

func scanPost(row scanner) (domain.Post, error) {
	var (
		p  domain.Post
		ms int64
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.OwnerName, &p.ImageRef, &p.Description, &ms); err != nil {
		return domain.Post{}, err
	}
	p.InsertedAt = time.UnixMilli(ms).UTC()
	return p, nil
}

// ListPosts returns all posts, newest first.
func (s *Store) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		ORDER BY inserted_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// GetPost returns a post by ID.
func (s *Store) GetPost(ctx context.Context, id string) (domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("get post %s: %w", id, err)
	}
	return p, nil
}

// CreatePost inserts a new post with a generated ID.
func (s *Store) CreatePost(ctx context.Context, np domain.NewPost) (domain.Post, error) {
	if err := domain.Validate(np); err != nil {
		return domain.Post{}, err
	}
	id, err := newID()
	if err != nil {
		return domain.Post{}, err
	}

	p := domain.Post{
		ID:          id,
		OwnerID:     np.OwnerID,
		OwnerName:   np.OwnerName,
		ImageRef:    np.ImageRef,
		Description: np.Description,
		InsertedAt:  s.timestamp(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.OwnerName, p.ImageRef, p.Description, p.InsertedAt.UnixMilli(),
	)
	if err != nil {
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return p, nil
}

// DeletePost removes post id. Its comments are left to DeleteThreadComments.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	return nil
}
