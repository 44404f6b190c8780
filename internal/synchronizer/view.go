// Package synchronizer keeps a client's view of one thread's comments in
// step with local mutations and events relayed from other clients.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blackmichael/live-comments/internal/domain"
)

var (
	// ErrViewClosed is returned by local mutations on a closed view.
	ErrViewClosed = errors.New("view closed")

	// ErrCommentNotFound is returned when a local update targets a comment
	// the view does not hold.
	ErrCommentNotFound = errors.New("comment not in view")

	// ErrWrongThread is returned when a local comment belongs to another
	// thread.
	ErrWrongThread = errors.New("comment belongs to another thread")
)

// State is the lifecycle state of a view.
type State int

const (
	Loading State = iota
	Live
	Closed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Live:
		return "live"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fetcher loads the authoritative comment list of a thread.
type Fetcher interface {
	ListComments(ctx context.Context, threadID string) ([]domain.Comment, error)
}

// Feed is a view's subscription to relayed events.
type Feed interface {
	Next(ctx context.Context) (domain.Event, error)
	Publish(ctx context.Context, e domain.Event) error
	Close()
}

// ForThread returns a subscription filter that accepts events of threadID.
func ForThread(threadID string) func(domain.Event) bool {
	return func(e domain.Event) bool { return e.ThreadID == threadID }
}

// View is one client's live list of a thread's comments.
type View struct {
	threadID string
	fetcher  Fetcher
	feed     Feed
	logger   *slog.Logger

	// loadMu serializes fetches.
	loadMu sync.Mutex

	mu      sync.Mutex
	state   State
	list    *CommentList
	pending []domain.Event
	changes chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// Open starts a view of threadID. feed must already be subscribed so that
// events relayed while the initial fetch is in flight are kept and replayed
// over the fetched list. The view owns feed and closes it on Close. If the
// fetch fails the view is closed and the error returned.
func Open(ctx context.Context, threadID string, fetcher Fetcher, feed Feed, logger *slog.Logger) (*View, error) {
	pumpCtx, cancel := context.WithCancel(context.Background())
	v := &View{
		threadID: threadID,
		fetcher:  fetcher,
		feed:     feed,
		logger:   logger.With("thread_id", threadID),
		state:    Loading,
		changes:  make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go v.pump(pumpCtx)

	if err := v.load(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// ThreadID returns the thread this view follows.
func (v *View) ThreadID() string {
	return v.threadID
}

// State returns the view's lifecycle state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Snapshot returns a copy of the current list, newest first. It is empty
// unless the view is live.
func (v *View) Snapshot() []domain.Comment {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Live {
		return nil
	}
	return v.list.Items()
}

// Changes returns a channel that receives a value after the list changes.
// Notifications coalesce; readers should take a Snapshot after each one.
// The channel is closed when the view closes.
func (v *View) Changes() <-chan struct{} {
	return v.changes
}

// Resync discards the list, fetches it again and replays any events that
// arrive meanwhile. If the fetch fails the view stays live on its previous
// list, with the events received meanwhile applied, and the error is
// returned.
func (v *View) Resync(ctx context.Context) error {
	return v.load(ctx)
}

func (v *View) load(ctx context.Context) error {
	v.loadMu.Lock()
	defer v.loadMu.Unlock()

	v.mu.Lock()
	if v.state == Closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.state = Loading
	v.pending = nil
	v.mu.Unlock()

	comments, fetchErr := v.fetcher.ListComments(ctx, v.threadID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Closed {
		if fetchErr != nil {
			return fmt.Errorf("fetch comments: %w", fetchErr)
		}
		return ErrViewClosed
	}

	// A failed fetch keeps the previous list and still goes live with the
	// events queued while loading.
	if fetchErr == nil || v.list == nil {
		v.list = NewCommentList(comments)
	}
	for _, e := range v.pending {
		v.list.Apply(e)
	}
	v.logger.Debug("view live", "comments", v.list.Len(), "replayed", len(v.pending))
	v.pending = nil
	v.state = Live
	v.notify()

	if fetchErr != nil {
		return fmt.Errorf("fetch comments: %w", fetchErr)
	}
	return nil
}

func (v *View) pump(ctx context.Context) {
	defer close(v.done)
	for {
		e, err := v.feed.Next(ctx)
		if err != nil {
			return
		}
		v.ApplyRemoteEvent(e)
	}
}

// ApplyRemoteEvent reconciles an event relayed from another client. Events
// for other threads and events arriving after Close are ignored.
func (v *View) ApplyRemoteEvent(e domain.Event) {
	if e.ThreadID != v.threadID {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.apply(e)
}

// ApplyThreadDeleted empties the view if threadID is its thread.
func (v *View) ApplyThreadDeleted(threadID string) {
	v.ApplyRemoteEvent(domain.ThreadDeletedEvent(threadID))
}

// apply must be called with mu held.
func (v *View) apply(e domain.Event) {
	switch v.state {
	case Closed:
	case Loading:
		v.pending = append(v.pending, e)
	case Live:
		if v.list.Apply(e) {
			v.notify()
		}
	}
}

// ApplyLocalCreate adds a comment the record store has just confirmed and
// publishes it to the other clients.
func (v *View) ApplyLocalCreate(ctx context.Context, c domain.Comment) error {
	if c.ThreadID != v.threadID {
		return ErrWrongThread
	}
	e := domain.CreatedEvent(c)

	v.mu.Lock()
	if v.state == Closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.apply(e)
	v.mu.Unlock()

	v.publish(ctx, e)
	return nil
}

// ApplyLocalUpdate replaces the body of comment id in place and publishes
// the change. A live view must already hold the comment.
func (v *View) ApplyLocalUpdate(ctx context.Context, id, body string) error {
	e := domain.UpdatedEvent(v.threadID, id, body)

	v.mu.Lock()
	switch v.state {
	case Closed:
		v.mu.Unlock()
		return ErrViewClosed
	case Live:
		if _, ok := v.list.Get(id); !ok {
			v.mu.Unlock()
			return ErrCommentNotFound
		}
	}
	v.apply(e)
	v.mu.Unlock()

	v.publish(ctx, e)
	return nil
}

// ApplyLocalDelete removes comment id if present and publishes the delete.
func (v *View) ApplyLocalDelete(ctx context.Context, id string) error {
	e := domain.DeletedEvent(v.threadID, id)

	v.mu.Lock()
	if v.state == Closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.apply(e)
	v.mu.Unlock()

	v.publish(ctx, e)
	return nil
}

// Get returns comment id if the view holds it.
func (v *View) Get(id string) (domain.Comment, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Live {
		return domain.Comment{}, false
	}
	return v.list.Get(id)
}

// publish relays e. A failed publish leaves the local change in place; the
// other clients catch up on their next fetch.
func (v *View) publish(ctx context.Context, e domain.Event) {
	if err := v.feed.Publish(ctx, e); err != nil {
		v.logger.Warn("failed to publish event", "kind", e.Kind, "comment_id", e.ID, "error", err)
	}
}

// Close cancels the subscription and releases the list. Later events and
// mutations have no effect. It is safe to call more than once.
func (v *View) Close() {
	v.mu.Lock()
	if v.state == Closed {
		v.mu.Unlock()
		return
	}
	v.state = Closed
	v.list = nil
	v.pending = nil
	close(v.changes)
	v.mu.Unlock()

	v.feed.Close()
	v.cancel()
	<-v.done
}

// notify must be called with mu held.
func (v *View) notify() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}
