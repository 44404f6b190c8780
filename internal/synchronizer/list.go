package synchronizer

import (
	"slices"

	"github.com/blackmichael/live-comments/internal/domain"
)

// CommentList is a thread's comments, newest first, with at most one entry
// per ID. Comments with equal InsertedAt are ordered by descending ID so
// every client settles on the same order.
type CommentList struct {
	items []domain.Comment
}

// NewCommentList builds a list from comments in any order. Later duplicates
// of an ID are dropped.
func NewCommentList(comments []domain.Comment) *CommentList {
	l := &CommentList{items: make([]domain.Comment, 0, len(comments))}
	for _, c := range comments {
		l.Insert(c)
	}
	return l
}

func before(a, b domain.Comment) bool {
	if !a.InsertedAt.Equal(b.InsertedAt) {
		return a.InsertedAt.After(b.InsertedAt)
	}
	return a.ID > b.ID
}

// Len returns the number of comments.
func (l *CommentList) Len() int {
	return len(l.items)
}

func (l *CommentList) index(id string) int {
	return slices.IndexFunc(l.items, func(c domain.Comment) bool { return c.ID == id })
}

// Get returns the comment with id.
func (l *CommentList) Get(id string) (domain.Comment, bool) {
	i := l.index(id)
	if i < 0 {
		return domain.Comment{}, false
	}
	return l.items[i], true
}

// Insert adds c at its sorted position unless its ID is already present.
func (l *CommentList) Insert(c domain.Comment) bool {
	if l.index(c.ID) >= 0 {
		return false
	}
	i, _ := slices.BinarySearchFunc(l.items, c, func(e, t domain.Comment) int {
		if before(e, t) {
			return -1
		}
		return 1
	})
	l.items = slices.Insert(l.items, i, c)
	return true
}

// SetBody replaces the body of comment id in place.
func (l *CommentList) SetBody(id, body string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items[i].Body = body
	return true
}

// Remove deletes comment id.
func (l *CommentList) Remove(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	return true
}

// Clear removes every comment.
func (l *CommentList) Clear() bool {
	if len(l.items) == 0 {
		return false
	}
	clear(l.items)
	l.items = l.items[:0]
	return true
}

// Items returns a copy of the comments in order.
func (l *CommentList) Items() []domain.Comment {
	return slices.Clone(l.items)
}

// Apply reconciles one event into the list and reports whether the list
// changed. Updates and deletes of absent comments are no-ops.
func (l *CommentList) Apply(e domain.Event) bool {
	switch e.Kind {
	case domain.EventCreate:
		return l.Insert(e.Comment())
	case domain.EventUpdate:
		return l.SetBody(e.ID, e.Body)
	case domain.EventDelete:
		return l.Remove(e.ID)
	case domain.EventThreadDeleted:
		return l.Clear()
	default:
		return false
	}
}
