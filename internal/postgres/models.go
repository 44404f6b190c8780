package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/blackmichael/live-comments/internal/domain"
)

// A comment is a row of the comments table. PostID is the thread ID.
type comment struct {
	bun.BaseModel `bun:"table:comments,alias:c"`

	ID         string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	PostID     string    `bun:"post_id,type:uuid,notnull"`
	UserID     string    `bun:",notnull"`
	UserName   string    `bun:",notnull"`
	Text       string    `bun:",notnull"`
	InsertedAt time.Time `bun:",nullzero,notnull,default:now()"`
}

type post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID          string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	OwnerID     string    `bun:",notnull"`
	OwnerName   string    `bun:",notnull"`
	ImageRef    string    `bun:",notnull"`
	Description string    `bun:",notnull"`
	InsertedAt  time.Time `bun:",nullzero,notnull,default:now()"`
}

// Timestamps are cut to milliseconds to match what travels in hub events.
func (c comment) domainComment() domain.Comment {
	return domain.Comment{
		ID:         c.ID,
		ThreadID:   c.PostID,
		AuthorID:   c.UserID,
		AuthorName: c.UserName,
		Body:       c.Text,
		InsertedAt: c.InsertedAt.UTC().Truncate(time.Millisecond),
	}
}

func (p post) domainPost() domain.Post {
	return domain.Post{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		OwnerName:   p.OwnerName,
		ImageRef:    p.ImageRef,
		Description: p.Description,
		InsertedAt:  p.InsertedAt.UTC().Truncate(time.Millisecond),
	}
}
