package domain

import (
	"context"
	"io"
)

// CommentRepository defines the record store operations on comments.
type CommentRepository interface {
	// ListComments returns the comments of a thread, newest first.
	ListComments(ctx context.Context, threadID string) ([]Comment, error)

	// GetComment returns a comment by ID, or ErrNotFound.
	GetComment(ctx context.Context, id string) (Comment, error)

	// CreateComment stores a new comment and returns it with the
	// store-assigned ID and InsertedAt.
	CreateComment(ctx context.Context, c NewComment) (Comment, error)

	// UpdateCommentBody replaces the body of comment id and returns the
	// updated record, or ErrNotFound.
	UpdateCommentBody(ctx context.Context, id, body string) (Comment, error)

	// DeleteComment removes comment id. Deleting a missing comment is not
	// an error.
	DeleteComment(ctx context.Context, id string) error

	// DeleteThreadComments removes every comment of a thread and returns
	// how many were removed.
	DeleteThreadComments(ctx context.Context, threadID string) (int64, error)
}

// PostRepository defines the record store operations on posts.
type PostRepository interface {
	// ListPosts returns all posts, newest first.
	ListPosts(ctx context.Context) ([]Post, error)

	// GetPost returns a post by ID, or ErrNotFound.
	GetPost(ctx context.Context, id string) (Post, error)

	// CreatePost stores a new post and returns it with the store-assigned
	// ID and InsertedAt.
	CreatePost(ctx context.Context, p NewPost) (Post, error)

	// DeletePost removes post id. Deleting a missing post is not an error.
	DeletePost(ctx context.Context, id string) error
}

// RecordStore is the durable, authoritative store for posts and comments.
type RecordStore interface {
	CommentRepository
	PostRepository
}

// ImageStore uploads post images and returns a reference to store on the
// post.
type ImageStore interface {
	PutImage(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
}
