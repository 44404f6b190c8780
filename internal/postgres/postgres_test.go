package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/live-comments/internal/domain"
)

func TestCommentModel(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("CEST", 2*60*60))
	c := comment{ID: "id", PostID: "p", UserID: "u", UserName: "ana", Text: "🔥 hi", InsertedAt: at}

	got := c.domainComment()

	assert.Equal(t, domain.Comment{
		ID:         "id",
		ThreadID:   "p",
		AuthorID:   "u",
		AuthorName: "ana",
		Body:       "🔥 hi",
		InsertedAt: time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC),
	}, got)
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("0190a9c4-5b1e-7c3a-9a57-2f7d3c1e8b42"))
	assert.False(t, validID("missing"))
	assert.False(t, validID(""))
}

// connect returns a store on TEST_DATABASE_URL, skipping when it is unset.
func connect(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pg, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })
	require.NoError(t, pg.EnsureSchema(ctx))
	return pg
}

func TestPostgres_CommentLifecycle(t *testing.T) {
	pg := connect(t)
	ctx := context.Background()

	p, err := pg.CreatePost(ctx, domain.NewPost{OwnerID: "u1", OwnerName: "ana", ImageRef: "img.png", Description: "test"})
	require.NoError(t, err)
	t.Cleanup(func() {
		pg.DeleteThreadComments(ctx, p.ID)
		pg.DeletePost(ctx, p.ID)
	})

	c, err := pg.CreateComment(ctx, domain.NewComment{ThreadID: p.ID, AuthorID: "u1", AuthorName: "ana", Body: "🔥 hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.InsertedAt.IsZero())

	updated, err := pg.UpdateCommentBody(ctx, c.ID, "👍 edited")
	require.NoError(t, err)
	assert.Equal(t, "👍 edited", updated.Body)

	list, err := pg.ListComments(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Comment{updated}, list)

	n, err := pg.DeleteThreadComments(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = pg.GetComment(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = pg.UpdateCommentBody(ctx, "missing", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
