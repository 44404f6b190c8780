// Package rest is a record store client for a hosted PostgREST-compatible
// API, such as the one a managed Postgres backend exposes.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blackmichael/live-comments/internal/domain"
)

// Client implements domain.RecordStore over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the API rooted at baseURL, for example
// https://project.example.co/rest/v1. apiKey is sent both as the apikey
// header and as a bearer token.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type commentRow struct {
	ID         string    `json:"id,omitempty"`
	PostID     string    `json:"post_id"`
	UserEmail  string    `json:"user_email"`
	UserName   string    `json:"user_name"`
	Text       string    `json:"text"`
	InsertedAt time.Time `json:"inserted_at,omitzero"`
}

func (r commentRow) domainComment() domain.Comment {
	return domain.Comment{
		ID:         r.ID,
		ThreadID:   r.PostID,
		AuthorID:   r.UserEmail,
		AuthorName: r.UserName,
		Body:       r.Text,
		InsertedAt: r.InsertedAt.UTC().Truncate(time.Millisecond),
	}
}

type postRow struct {
	ID          string    `json:"id,omitempty"`
	UserEmail   string    `json:"user_email"`
	UserName    string    `json:"user_name"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	InsertedAt  time.Time `json:"inserted_at,omitzero"`
}

func (r postRow) domainPost() domain.Post {
	return domain.Post{
		ID:          r.ID,
		OwnerID:     r.UserEmail,
		OwnerName:   r.UserName,
		ImageRef:    r.Image,
		Description: r.Description,
		InsertedAt:  r.InsertedAt.UTC().Truncate(time.Millisecond),
	}
}

func eq(v string) string {
	return "eq." + v
}

// ListComments returns the comments of a thread, newest first.
func (c *Client) ListComments(ctx context.Context, threadID string) ([]domain.Comment, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("post_id", eq(threadID))
	q.Set("order", "inserted_at.desc,id.desc")

	var rows []commentRow
	if err := c.do(ctx, http.MethodGet, "/comments", q, nil, &rows); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	out := make([]domain.Comment, len(rows))
	for i, r := range rows {
		out[i] = r.domainComment()
	}
	return out, nil
}

// GetComment returns a comment by ID.
func (c *Client) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", eq(id))

	var rows []commentRow
	if err := c.do(ctx, http.MethodGet, "/comments", q, nil, &rows); err != nil {
		return domain.Comment{}, fmt.Errorf("get comment: %w", err)
	}
	if len(rows) == 0 {
		return domain.Comment{}, domain.ErrNotFound
	}
	return rows[0].domainComment(), nil
}

// CreateComment inserts a comment and returns the stored row.
func (c *Client) CreateComment(ctx context.Context, nc domain.NewComment) (domain.Comment, error) {
	if err := domain.Validate(nc); err != nil {
		return domain.Comment{}, err
	}
	body := []commentRow{{
		PostID:    nc.ThreadID,
		UserEmail: nc.AuthorID,
		UserName:  nc.AuthorName,
		Text:      nc.Body,
	}}

	var rows []commentRow
	if err := c.do(ctx, http.MethodPost, "/comments", nil, body, &rows); err != nil {
		return domain.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	if len(rows) == 0 {
		return domain.Comment{}, fmt.Errorf("create comment: empty response")
	}
	return rows[0].domainComment(), nil
}

// UpdateCommentBody replaces the body of comment id.
func (c *Client) UpdateCommentBody(ctx context.Context, id, body string) (domain.Comment, error) {
	q := url.Values{}
	q.Set("id", eq(id))

	var rows []commentRow
	if err := c.do(ctx, http.MethodPatch, "/comments", q, map[string]string{"text": body}, &rows); err != nil {
		return domain.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	if len(rows) == 0 {
		return domain.Comment{}, domain.ErrNotFound
	}
	return rows[0].domainComment(), nil
}

// DeleteComment removes comment id.
func (c *Client) DeleteComment(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", eq(id))

	if err := c.do(ctx, http.MethodDelete, "/comments", q, nil, nil); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// DeleteThreadComments removes every comment of a thread.
func (c *Client) DeleteThreadComments(ctx context.Context, threadID string) (int64, error) {
	q := url.Values{}
	q.Set("post_id", eq(threadID))
	q.Set("select", "id")

	var rows []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodDelete, "/comments", q, nil, &rows); err != nil {
		return 0, fmt.Errorf("delete thread comments: %w", err)
	}
	return int64(len(rows)), nil
}

// ListPosts returns all posts, newest first.
func (c *Client) ListPosts(ctx context.Context) ([]domain.Post, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "inserted_at.desc,id.desc")

	var rows []postRow
	if err := c.do(ctx, http.MethodGet, "/posts", q, nil, &rows); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	out := make([]domain.Post, len(rows))
	for i, r := range rows {
		out[i] = r.domainPost()
	}
	return out, nil
}

// GetPost returns a post by ID.
func (c *Client) GetPost(ctx context.Context, id string) (domain.Post, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", eq(id))

	var rows []postRow
	if err := c.do(ctx, http.MethodGet, "/posts", q, nil, &rows); err != nil {
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	if len(rows) == 0 {
		return domain.Post{}, domain.ErrNotFound
	}
	return rows[0].domainPost(), nil
}

// CreatePost inserts a post and returns the stored row.
func (c *Client) CreatePost(ctx context.Context, np domain.NewPost) (domain.Post, error) {
	if err := domain.Validate(np); err != nil {
		return domain.Post{}, err
	}
	body := []postRow{{
		UserEmail:   np.OwnerID,
		UserName:    np.OwnerName,
		Image:       np.ImageRef,
		Description: np.Description,
	}}

	var rows []postRow
	if err := c.do(ctx, http.MethodPost, "/posts", nil, body, &rows); err != nil {
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}
	if len(rows) == 0 {
		return domain.Post{}, fmt.Errorf("create post: empty response")
	}
	return rows[0].domainPost(), nil
}

// DeletePost removes post id.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", eq(id))

	if err := c.do(ctx, http.MethodDelete, "/posts", q, nil, nil); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// do sends one request. Mutations ask for the affected rows back so that
// store-assigned fields reach the caller.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
