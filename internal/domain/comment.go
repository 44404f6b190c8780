package domain

import (
	"strings"
	"time"
)

// Reactions is the fixed set of reaction tags a comment body may start with.
var Reactions = []string{"🔥", "❤️", "💡", "😂", "👍"}

// DefaultReaction is used when a body carries no recognised reaction tag.
const DefaultReaction = "🔥"

// Comment is a single comment on a post. Everything but Body is assigned at
// creation and never changes.
type Comment struct {
	// ID is assigned by the record store.
	ID string

	// ThreadID is the ID of the post the comment belongs to.
	ThreadID string

	AuthorID   string
	AuthorName string

	// Body is the reaction tag followed by a space and the free text.
	Body string

	// InsertedAt is assigned by the record store and is the sort key.
	InsertedAt time.Time
}

// NewComment carries the caller-supplied fields of a comment that has not
// been written to the record store yet.
type NewComment struct {
	ThreadID   string `validate:"required"`
	AuthorID   string `validate:"required"`
	AuthorName string `validate:"required"`
	Body       string `validate:"required,max=2000"`
}

// ComposeBody joins a reaction tag and free text into a comment body.
func ComposeBody(reaction, text string) string {
	return reaction + " " + text
}

// SplitBody splits a body into its reaction tag and free text. Bodies without
// a leading tag get DefaultReaction.
func SplitBody(body string) (reaction, text string) {
	tag, rest, found := strings.Cut(body, " ")
	if !found || !IsReaction(tag) {
		return DefaultReaction, body
	}
	return tag, rest
}

// IsReaction reports whether tag is one of Reactions.
func IsReaction(tag string) bool {
	for _, r := range Reactions {
		if r == tag {
			return true
		}
	}
	return false
}
