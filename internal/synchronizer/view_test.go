package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/live-comments/internal/domain"
)

type fakeFetcher struct {
	listCommentsFn func(ctx context.Context, threadID string) ([]domain.Comment, error)
}

func (f *fakeFetcher) ListComments(ctx context.Context, threadID string) ([]domain.Comment, error) {
	return f.listCommentsFn(ctx, threadID)
}

func staticFetcher(comments ...domain.Comment) *fakeFetcher {
	return &fakeFetcher{listCommentsFn: func(context.Context, string) ([]domain.Comment, error) {
		return comments, nil
	}}
}

type fakeFeed struct {
	in     chan domain.Event
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	published []domain.Event
	publishFn func(domain.Event) error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{in: make(chan domain.Event, 64), closed: make(chan struct{})}
}

func (f *fakeFeed) Next(ctx context.Context) (domain.Event, error) {
	select {
	case e := <-f.in:
		return e, nil
	case <-f.closed:
		return domain.Event{}, errors.New("closed")
	case <-ctx.Done():
		return domain.Event{}, ctx.Err()
	}
}

func (f *fakeFeed) Publish(_ context.Context, e domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishFn != nil {
		if err := f.publishFn(e); err != nil {
			return err
		}
	}
	f.published = append(f.published, e)
	return nil
}

func (f *fakeFeed) Published() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Event(nil), f.published...)
}

func (f *fakeFeed) Close() {
	f.once.Do(func() { close(f.closed) })
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func comment(id string, minute int, body string) domain.Comment {
	return domain.Comment{
		ID:         id,
		ThreadID:   "p1",
		AuthorID:   "u1",
		AuthorName: "ana",
		Body:       body,
		InsertedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func ids(comments []domain.Comment) []string {
	out := make([]string, 0, len(comments))
	for _, c := range comments {
		out = append(out, c.ID)
	}
	return out
}

func openView(t *testing.T, fetcher Fetcher, feed *fakeFeed) *View {
	t.Helper()
	v, err := Open(context.Background(), "p1", fetcher, feed, slogt.New(t))
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

// settle waits until the view has drained every event pushed to feed.
func settle(t *testing.T, feed *fakeFeed) {
	t.Helper()
	require.Eventually(t, func() bool { return len(feed.in) == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
}

func TestOpen_LoadsNewestFirst(t *testing.T) {
	v := openView(t, staticFetcher(comment("a", 1, "🔥 a"), comment("c", 3, "🔥 c"), comment("b", 2, "🔥 b")), newFakeFeed())

	assert.Equal(t, Live, v.State())
	assert.Equal(t, []string{"c", "b", "a"}, ids(v.Snapshot()))
}

func TestOpen_FetchError(t *testing.T) {
	feed := newFakeFeed()
	fetcher := &fakeFetcher{listCommentsFn: func(context.Context, string) ([]domain.Comment, error) {
		return nil, errors.New("store down")
	}}

	_, err := Open(context.Background(), "p1", fetcher, feed, slogt.New(t))

	require.Error(t, err)
	select {
	case <-feed.closed:
	default:
		t.Fatal("feed not closed after failed open")
	}
}

func TestApplyRemoteEvent_CreateIsIdempotent(t *testing.T) {
	feed := newFakeFeed()
	v := openView(t, staticFetcher(), feed)

	c := comment("c1", 1, "🔥 hi")
	feed.in <- domain.CreatedEvent(c)
	feed.in <- domain.CreatedEvent(c)
	settle(t, feed)

	if diff := cmp.Diff([]domain.Comment{c}, v.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyRemoteEvent_UpdateAbsentIsNoop(t *testing.T) {
	v := openView(t, staticFetcher(comment("c1", 1, "🔥 hi")), newFakeFeed())
	before := v.Snapshot()

	v.ApplyRemoteEvent(domain.UpdatedEvent("p1", "missing", "👍 new"))

	assert.Equal(t, before, v.Snapshot())
}

func TestApplyRemoteEvent_DeleteAbsentIsNoop(t *testing.T) {
	v := openView(t, staticFetcher(comment("c1", 1, "🔥 hi")), newFakeFeed())
	before := v.Snapshot()

	v.ApplyRemoteEvent(domain.DeletedEvent("p1", "missing"))

	assert.Equal(t, before, v.Snapshot())
}

func TestApplyRemoteEvent_UpdateKeepsPosition(t *testing.T) {
	v := openView(t, staticFetcher(comment("a", 1, "🔥 a"), comment("b", 2, "🔥 b"), comment("c", 3, "🔥 c")), newFakeFeed())

	v.ApplyRemoteEvent(domain.UpdatedEvent("p1", "a", "💡 edited"))

	got := v.Snapshot()
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))
	assert.Equal(t, "💡 edited", got[2].Body)
}

func TestApplyRemoteEvent_OrderPreserved(t *testing.T) {
	v := openView(t, staticFetcher(), newFakeFeed())

	for _, c := range []domain.Comment{
		comment("m", 5, "x"),
		comment("a", 1, "x"),
		comment("z", 9, "x"),
		comment("q", 5, "x"),
	} {
		v.ApplyRemoteEvent(domain.CreatedEvent(c))
	}

	// Equal timestamps fall back to descending ID.
	assert.Equal(t, []string{"z", "q", "m", "a"}, ids(v.Snapshot()))
}

func TestApplyRemoteEvent_OtherThreadIgnored(t *testing.T) {
	v := openView(t, staticFetcher(comment("c1", 1, "x")), newFakeFeed())

	other := comment("c2", 2, "x")
	other.ThreadID = "p2"
	v.ApplyRemoteEvent(domain.CreatedEvent(other))
	v.ApplyRemoteEvent(domain.DeletedEvent("p2", "c1"))
	v.ApplyRemoteEvent(domain.ThreadDeletedEvent("p2"))

	assert.Equal(t, []string{"c1"}, ids(v.Snapshot()))
}

func TestApplyThreadDeleted(t *testing.T) {
	feed := newFakeFeed()
	v := openView(t, staticFetcher(comment("a", 1, "x"), comment("b", 2, "x")), feed)

	v.ApplyThreadDeleted("p1")
	assert.Empty(t, v.Snapshot())

	v.ApplyRemoteEvent(domain.CreatedEvent(comment("c", 3, "x")))
	feed.in <- domain.ThreadDeletedEvent("p1")
	settle(t, feed)
	assert.Empty(t, v.Snapshot())
}

func TestApplyLocal(t *testing.T) {
	feed := newFakeFeed()
	v := openView(t, staticFetcher(), feed)
	ctx := context.Background()

	c := comment("c1", 1, "🔥 hi")
	require.NoError(t, v.ApplyLocalCreate(ctx, c))
	require.NoError(t, v.ApplyLocalUpdate(ctx, "c1", "👍 edited"))
	got, ok := v.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "👍 edited", got.Body)

	require.NoError(t, v.ApplyLocalDelete(ctx, "c1"))
	require.NoError(t, v.ApplyLocalDelete(ctx, "c1"))
	assert.Empty(t, v.Snapshot())

	want := []domain.Event{
		domain.CreatedEvent(c),
		domain.UpdatedEvent("p1", "c1", "👍 edited"),
		domain.DeletedEvent("p1", "c1"),
		domain.DeletedEvent("p1", "c1"),
	}
	if diff := cmp.Diff(want, feed.Published()); diff != "" {
		t.Errorf("published events mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyLocalUpdate_NotFound(t *testing.T) {
	feed := newFakeFeed()
	v := openView(t, staticFetcher(), feed)

	err := v.ApplyLocalUpdate(context.Background(), "missing", "x")

	assert.ErrorIs(t, err, ErrCommentNotFound)
	assert.Empty(t, feed.Published())
}

func TestApplyLocalCreate_WrongThread(t *testing.T) {
	v := openView(t, staticFetcher(), newFakeFeed())

	c := comment("c1", 1, "x")
	c.ThreadID = "p2"

	assert.ErrorIs(t, v.ApplyLocalCreate(context.Background(), c), ErrWrongThread)
}

func TestApplyLocal_PublishFailureKeepsLocalChange(t *testing.T) {
	feed := newFakeFeed()
	feed.publishFn = func(domain.Event) error { return errors.New("not connected") }
	v := openView(t, staticFetcher(), feed)

	require.NoError(t, v.ApplyLocalCreate(context.Background(), comment("c1", 1, "x")))

	assert.Equal(t, []string{"c1"}, ids(v.Snapshot()))
}

func TestClose(t *testing.T) {
	feed := newFakeFeed()
	v, err := Open(context.Background(), "p1", staticFetcher(comment("a", 1, "x")), feed, slogt.New(t))
	require.NoError(t, err)

	v.Close()
	v.Close()

	assert.Equal(t, Closed, v.State())
	assert.Nil(t, v.Snapshot())

	v.ApplyRemoteEvent(domain.CreatedEvent(comment("b", 2, "x")))
	assert.Nil(t, v.Snapshot())

	ctx := context.Background()
	assert.ErrorIs(t, v.ApplyLocalCreate(ctx, comment("c", 3, "x")), ErrViewClosed)
	assert.ErrorIs(t, v.ApplyLocalUpdate(ctx, "a", "y"), ErrViewClosed)
	assert.ErrorIs(t, v.ApplyLocalDelete(ctx, "a"), ErrViewClosed)
	assert.ErrorIs(t, v.Resync(ctx), ErrViewClosed)
	assert.Empty(t, feed.Published())

	// Changes is closed; this loop ends after any buffered notification.
	for range v.Changes() {
	}
}

func TestLoadingWindow(t *testing.T) {
	feed := newFakeFeed()
	fetching := make(chan struct{})
	release := make(chan struct{})

	// The store snapshot already holds x and y. z is created, y deleted
	// and x edited while the fetch is in flight.
	x := comment("x", 1, "🔥 x")
	y := comment("y", 2, "🔥 y")
	z := comment("z", 3, "🔥 z")
	fetcher := &fakeFetcher{listCommentsFn: func(context.Context, string) ([]domain.Comment, error) {
		close(fetching)
		<-release
		return []domain.Comment{x, y}, nil
	}}

	type result struct {
		v   *View
		err error
	}
	opened := make(chan result, 1)
	go func() {
		v, err := Open(context.Background(), "p1", fetcher, feed, slogt.New(t))
		opened <- result{v, err}
	}()

	<-fetching
	feed.in <- domain.CreatedEvent(z)
	feed.in <- domain.DeletedEvent("p1", "y")
	feed.in <- domain.UpdatedEvent("p1", "x", "💡 x2")
	require.Eventually(t, func() bool { return len(feed.in) == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)

	res := <-opened
	require.NoError(t, res.err)
	t.Cleanup(res.v.Close)

	got := res.v.Snapshot()
	assert.Equal(t, []string{"z", "x"}, ids(got))
	assert.Equal(t, "💡 x2", got[1].Body)
}

func TestResync_LocalMutationsQueued(t *testing.T) {
	feed := newFakeFeed()
	var gate chan struct{}
	resyncing := make(chan struct{})
	fetcher := &fakeFetcher{listCommentsFn: func(context.Context, string) ([]domain.Comment, error) {
		if gate != nil {
			close(resyncing)
			<-gate
		}
		return nil, nil
	}}
	v := openView(t, fetcher, feed)

	gate = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- v.Resync(context.Background()) }()

	<-resyncing
	assert.Equal(t, Loading, v.State())
	require.NoError(t, v.ApplyLocalCreate(context.Background(), comment("c1", 1, "x")))
	assert.Len(t, feed.Published(), 1, "local mutations are published immediately")
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"c1"}, ids(v.Snapshot()))
}

func TestResync(t *testing.T) {
	feed := newFakeFeed()
	stored := []domain.Comment{comment("a", 1, "x")}
	fetcher := &fakeFetcher{listCommentsFn: func(context.Context, string) ([]domain.Comment, error) {
		return stored, nil
	}}
	v := openView(t, fetcher, feed)

	// The view missed b while disconnected and still holds a stale body.
	v.ApplyRemoteEvent(domain.UpdatedEvent("p1", "a", "stale"))
	stored = []domain.Comment{comment("a", 1, "x"), comment("b", 2, "y")}

	require.NoError(t, v.Resync(context.Background()))

	got := v.Snapshot()
	assert.Equal(t, []string{"b", "a"}, ids(got))
	assert.Equal(t, "x", got[1].Body)
}

func TestResync_FetchErrorKeepsViewLive(t *testing.T) {
	feed := newFakeFeed()
	var gate chan struct{}
	resyncing := make(chan struct{})
	fetcher := &fakeFetcher{listCommentsFn: func(context.Context, string) ([]domain.Comment, error) {
		if gate != nil {
			close(resyncing)
			<-gate
			return nil, errors.New("store down")
		}
		return []domain.Comment{comment("a", 1, "🔥 a")}, nil
	}}
	v := openView(t, fetcher, feed)

	gate = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- v.Resync(context.Background()) }()

	<-resyncing
	v.ApplyRemoteEvent(domain.CreatedEvent(comment("b", 2, "🔥 b")))
	v.ApplyRemoteEvent(domain.UpdatedEvent("p1", "a", "💡 a2"))
	close(gate)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
	assert.Equal(t, Live, v.State())

	got := v.Snapshot()
	assert.Equal(t, []string{"b", "a"}, ids(got))
	assert.Equal(t, "💡 a2", got[1].Body)

	// Later events apply directly instead of queueing.
	v.ApplyRemoteEvent(domain.CreatedEvent(comment("c", 3, "🔥 c")))
	assert.Equal(t, []string{"c", "b", "a"}, ids(v.Snapshot()))
	_, ok := v.Get("a")
	assert.True(t, ok)
	require.NoError(t, v.ApplyLocalUpdate(context.Background(), "a", "💡 a3"))
}

func TestChanges(t *testing.T) {
	feed := newFakeFeed()
	v := openView(t, staticFetcher(), feed)

	// Drain the notification from the initial load.
	select {
	case <-v.Changes():
	default:
	}

	v.ApplyRemoteEvent(domain.DeletedEvent("p1", "missing"))
	select {
	case <-v.Changes():
		t.Fatal("no-op event must not notify")
	default:
	}

	v.ApplyRemoteEvent(domain.CreatedEvent(comment("a", 1, "x")))
	v.ApplyRemoteEvent(domain.CreatedEvent(comment("b", 2, "x")))
	select {
	case <-v.Changes():
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}
}
