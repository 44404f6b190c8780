package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackmichael/live-comments/internal/client"
)

// NewPostsCommand creates the posts command.
func NewPostsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "posts",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			posts, err := e.session().ListPosts(cmd.Context())
			if err != nil {
				return err
			}
			return printPosts(cmd.OutOrStdout(), opts.Format, posts)
		},
	}
}

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	Image       string
	Description string
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Upload an image and create a post",
		Long: `Upload an image and create a post.

Example:
  commentctl post --image sunset.jpg --description "Evening at the pier"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return createPost(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Image, "image", "", "image file to upload")
	cmd.Flags().StringVar(&opts.Description, "description", "", "post description")
	cmd.MarkFlagRequired("image")
	cmd.MarkFlagRequired("description")

	return cmd
}

func createPost(cmd *cobra.Command, opts *PostOptions) error {
	f, err := os.Open(opts.Image)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(opts.Image))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	e, err := openEnv(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.session().CreatePost(cmd.Context(), client.Image{
		Filename:    filepath.Base(opts.Image),
		ContentType: contentType,
		Size:        info.Size(),
		Body:        f,
	}, opts.Description)
	if err != nil {
		return err
	}
	return printPost(cmd.OutOrStdout(), opts.Format, p)
}

// NewDeletePostCommand creates the delete-post command.
func NewDeletePostCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-post <post-id>",
		Short: "Delete one of your posts and all of its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.session().DeletePost(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted post %s\n", args[0])
			return nil
		},
	}
}
