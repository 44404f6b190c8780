package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/blackmichael/live-comments/internal/domain"
)

type postView struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	OwnerName   string    `json:"ownerName"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	InsertedAt  time.Time `json:"insertedAt"`
}

type commentView struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Reaction   string    `json:"reaction"`
	Text       string    `json:"text"`
	InsertedAt time.Time `json:"insertedAt"`
}

func toPostView(p domain.Post) postView {
	return postView{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		OwnerName:   p.OwnerName,
		Image:       p.ImageRef,
		Description: p.Description,
		InsertedAt:  p.InsertedAt,
	}
}

func toCommentView(c domain.Comment) commentView {
	reaction, text := domain.SplitBody(c.Body)
	return commentView{
		ID:         c.ID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Reaction:   reaction,
		Text:       text,
		InsertedAt: c.InsertedAt,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPosts(w io.Writer, format string, posts []domain.Post) error {
	views := make([]postView, len(posts))
	for i, p := range posts {
		views[i] = toPostView(p)
	}
	if format == "json" {
		return writeJSON(w, views)
	}

	if len(views) == 0 {
		fmt.Fprintln(w, "no posts")
		return nil
	}
	for _, p := range views {
		fmt.Fprintf(w, "%s  %s  %s\n", p.ID, p.InsertedAt.Local().Format(time.DateTime), p.OwnerName)
		fmt.Fprintf(w, "    %s\n", p.Description)
		fmt.Fprintf(w, "    %s\n", p.Image)
	}
	return nil
}

func printPost(w io.Writer, format string, p domain.Post) error {
	if format == "json" {
		return writeJSON(w, toPostView(p))
	}
	fmt.Fprintf(w, "created post %s\n", p.ID)
	return nil
}

func printComments(w io.Writer, format string, comments []domain.Comment) error {
	views := make([]commentView, len(comments))
	for i, c := range comments {
		views[i] = toCommentView(c)
	}
	if format == "json" {
		return writeJSON(w, views)
	}

	if len(views) == 0 {
		fmt.Fprintln(w, "no comments")
		return nil
	}
	for _, c := range views {
		fmt.Fprintf(w, "%s %s: %s  (%s, %s)\n", c.Reaction, c.AuthorName, c.Text, c.InsertedAt.Local().Format(time.DateTime), c.ID)
	}
	return nil
}

func printComment(w io.Writer, format, verb string, c domain.Comment) error {
	if format == "json" {
		return writeJSON(w, toCommentView(c))
	}
	fmt.Fprintf(w, "%s comment %s\n", verb, c.ID)
	return nil
}
