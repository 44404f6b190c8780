package domain

import "time"

// Post is an uploaded image with a description. Its ID doubles as the thread
// ID of the comments attached to it.
type Post struct {
	ID string

	OwnerID   string
	OwnerName string

	// ImageRef is the public URL (or object key) of the uploaded image.
	ImageRef string

	Description string

	InsertedAt time.Time
}

// NewPost carries the caller-supplied fields of a post that has not been
// written to the record store yet.
type NewPost struct {
	OwnerID     string `validate:"required"`
	OwnerName   string `validate:"required"`
	ImageRef    string `validate:"required"`
	Description string `validate:"required,max=1000"`
}
