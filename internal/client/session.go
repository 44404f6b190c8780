// Package client runs a signed-in user's comment session: it writes through
// the record store, keeps thread views live and relays changes through the
// hub.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/blackmichael/live-comments/internal/domain"
	"github.com/blackmichael/live-comments/internal/hubclient"
	"github.com/blackmichael/live-comments/internal/synchronizer"
)

// ErrSessionClosed is returned by every operation after Close.
var ErrSessionClosed = errors.New("session closed")

// Deps are the services a session talks to. Images may be nil when posts
// are not created from this client.
type Deps struct {
	Store  domain.RecordStore
	Images domain.ImageStore
	Hub    *hubclient.Client
	Logger *slog.Logger
}

// Session is one identity's use of the system.
type Session struct {
	identity domain.Identity
	deps     Deps
	logger   *slog.Logger

	mu     sync.Mutex
	views  map[*synchronizer.View]struct{}
	closed bool
}

// NewSession starts a session for id.
func NewSession(id domain.Identity, deps Deps) *Session {
	return &Session{
		identity: id,
		deps:     deps,
		logger:   deps.Logger.With("user_id", id.ID),
		views:    make(map[*synchronizer.View]struct{}),
	}
}

// Identity returns who the session acts for.
func (s *Session) Identity() domain.Identity {
	return s.identity
}

// OpenThread opens a live view of threadID. The hub subscription is taken
// before the initial fetch so nothing relayed meanwhile is lost.
func (s *Session) OpenThread(ctx context.Context, threadID string) (*synchronizer.View, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	sub := s.deps.Hub.Subscribe(synchronizer.ForThread(threadID))
	v, err := synchronizer.Open(ctx, threadID, s.deps.Store, sub, s.logger)
	if err != nil {
		return nil, fmt.Errorf("open thread %s: %w", threadID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		v.Close()
		return nil, ErrSessionClosed
	}
	s.views[v] = struct{}{}
	return v, nil
}

// CloseThread closes v and forgets it.
func (s *Session) CloseThread(v *synchronizer.View) {
	s.mu.Lock()
	delete(s.views, v)
	s.mu.Unlock()
	v.Close()
}

func parseBody(reaction, text string) (string, error) {
	if !domain.IsReaction(reaction) {
		return "", fmt.Errorf("%w: unknown reaction %q", domain.ErrInvalidInput, reaction)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty comment", domain.ErrInvalidInput)
	}
	return domain.ComposeBody(reaction, text), nil
}

// PostComment writes a new comment to v's thread and shows it in v.
func (s *Session) PostComment(ctx context.Context, v *synchronizer.View, reaction, text string) (domain.Comment, error) {
	if s.isClosed() {
		return domain.Comment{}, ErrSessionClosed
	}
	body, err := parseBody(reaction, text)
	if err != nil {
		return domain.Comment{}, err
	}

	c, err := s.deps.Store.CreateComment(ctx, domain.NewComment{
		ThreadID:   v.ThreadID(),
		AuthorID:   s.identity.ID,
		AuthorName: s.identity.DisplayName,
		Body:       body,
	})
	if err != nil {
		return domain.Comment{}, fmt.Errorf("create comment: %w", err)
	}

	s.show(ctx, v.ApplyLocalCreate(ctx, c), domain.CreatedEvent(c))
	s.logger.Info("comment posted", "thread_id", c.ThreadID, "comment_id", c.ID)
	return c, nil
}

// EditComment replaces the body of one of the session's own comments in v.
func (s *Session) EditComment(ctx context.Context, v *synchronizer.View, id, reaction, text string) (domain.Comment, error) {
	if s.isClosed() {
		return domain.Comment{}, ErrSessionClosed
	}
	body, err := parseBody(reaction, text)
	if err != nil {
		return domain.Comment{}, err
	}

	existing, ok := v.Get(id)
	if !ok {
		return domain.Comment{}, synchronizer.ErrCommentNotFound
	}
	if existing.AuthorID != s.identity.ID {
		return domain.Comment{}, domain.ErrForbidden
	}

	updated, err := s.deps.Store.UpdateCommentBody(ctx, id, body)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("update comment: %w", err)
	}

	s.show(ctx, v.ApplyLocalUpdate(ctx, id, updated.Body), domain.UpdatedEvent(v.ThreadID(), id, updated.Body))
	return updated, nil
}

// DeleteComment deletes one of the session's own comments. The comment is
// looked up in the store if v does not hold it.
func (s *Session) DeleteComment(ctx context.Context, v *synchronizer.View, id string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	existing, ok := v.Get(id)
	if !ok {
		var err error
		existing, err = s.deps.Store.GetComment(ctx, id)
		if err != nil {
			return fmt.Errorf("get comment: %w", err)
		}
	}
	if existing.AuthorID != s.identity.ID {
		return domain.ErrForbidden
	}

	if err := s.deps.Store.DeleteComment(ctx, id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	s.show(ctx, v.ApplyLocalDelete(ctx, id), domain.DeletedEvent(v.ThreadID(), id))
	return nil
}

// show handles the result of applying a confirmed write to a view. The
// store already holds the change, so a view closed in the meantime only
// means the event is published here instead.
func (s *Session) show(ctx context.Context, applyErr error, e domain.Event) {
	switch {
	case applyErr == nil:
	case errors.Is(applyErr, synchronizer.ErrViewClosed):
		if err := s.deps.Hub.Publish(ctx, e); err != nil {
			s.logger.Warn("failed to publish event", "kind", e.Kind, "comment_id", e.ID, "error", err)
		}
	default:
		s.logger.Warn("stored change not shown", "kind", e.Kind, "comment_id", e.ID, "error", applyErr)
	}
}

// ListPosts returns every post, newest first.
func (s *Session) ListPosts(ctx context.Context) ([]domain.Post, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	posts, err := s.deps.Store.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// Image is an image file to attach to a new post.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CreatePost uploads img and creates a post owned by the session.
func (s *Session) CreatePost(ctx context.Context, img Image, description string) (domain.Post, error) {
	if s.isClosed() {
		return domain.Post{}, ErrSessionClosed
	}
	if s.deps.Images == nil {
		return domain.Post{}, fmt.Errorf("create post: no image store configured")
	}
	np := domain.NewPost{
		OwnerID:     s.identity.ID,
		OwnerName:   s.identity.DisplayName,
		ImageRef:    img.Filename,
		Description: strings.TrimSpace(description),
	}
	if err := domain.Validate(np); err != nil {
		return domain.Post{}, err
	}

	ref, err := s.deps.Images.PutImage(ctx, img.Filename, img.Body, img.Size, img.ContentType)
	if err != nil {
		return domain.Post{}, fmt.Errorf("upload image: %w", err)
	}
	np.ImageRef = ref

	p, err := s.deps.Store.CreatePost(ctx, np)
	if err != nil {
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}
	s.logger.Info("post created", "post_id", p.ID)
	return p, nil
}

// DeletePost deletes one of the session's own posts and all of its
// comments, empties any open view of it and tells the other clients.
func (s *Session) DeletePost(ctx context.Context, postID string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	p, err := s.deps.Store.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}
	if p.OwnerID != s.identity.ID {
		return domain.ErrForbidden
	}

	n, err := s.deps.Store.DeleteThreadComments(ctx, postID)
	if err != nil {
		return fmt.Errorf("delete post comments: %w", err)
	}
	if err := s.deps.Store.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	s.mu.Lock()
	for v := range s.views {
		v.ApplyThreadDeleted(postID)
	}
	s.mu.Unlock()

	if err := s.deps.Hub.Publish(ctx, domain.ThreadDeletedEvent(postID)); err != nil {
		s.logger.Warn("failed to publish thread deletion", "post_id", postID, "error", err)
	}
	s.logger.Info("post deleted", "post_id", postID, "comments_deleted", n)
	return nil
}

// Close closes every open view. Later calls fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	views := s.views
	s.views = nil
	s.mu.Unlock()

	for v := range views {
		v.Close()
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
