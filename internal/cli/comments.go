package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackmichael/live-comments/internal/domain"
	"github.com/blackmichael/live-comments/internal/synchronizer"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <post-id>",
		Short: "Print a post's comments and reprint them on every change",
		Long: `Print a post's comments and reprint them on every change.

Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			v, err := e.session().OpenThread(ctx, args[0])
			if err != nil {
				return err
			}
			return watch(ctx, cmd, opts, v)
		},
	}
}

func watch(ctx context.Context, cmd *cobra.Command, opts *RootOptions, v *synchronizer.View) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-v.Changes():
			if !ok {
				return nil
			}
			if opts.Format == "text" {
				fmt.Fprintf(cmd.OutOrStdout(), "--- %s\n", v.ThreadID())
			}
			if err := printComments(cmd.OutOrStdout(), opts.Format, v.Snapshot()); err != nil {
				return err
			}
		}
	}
}

// CommentOptions holds flags shared by the comment and edit commands.
type CommentOptions struct {
	*RootOptions
	Reaction string
}

func addReactionFlag(cmd *cobra.Command, opts *CommentOptions) {
	cmd.Flags().StringVarP(&opts.Reaction, "reaction", "r", domain.DefaultReaction,
		"reaction tag, one of "+strings.Join(domain.Reactions, " "))
}

// NewCommentCommand creates the comment command.
func NewCommentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "comment <post-id> <text>...",
		Short: "Comment on a post",
		Long: `Comment on a post.

Example:
  commentctl comment 0190a9c4-5b1e-7c3a-9a57-2f7d3c1e8b42 -r 💡 what lens was this?`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer e.Close()

			v, err := e.session().OpenThread(ctx, args[0])
			if err != nil {
				return err
			}
			c, err := e.session().PostComment(ctx, v, opts.Reaction, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return printComment(cmd.OutOrStdout(), opts.Format, "posted", c)
		},
	}
	addReactionFlag(cmd, opts)

	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <post-id> <comment-id> <text>...",
		Short: "Edit one of your comments",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer e.Close()

			v, err := e.session().OpenThread(ctx, args[0])
			if err != nil {
				return err
			}
			c, err := e.session().EditComment(ctx, v, args[1], opts.Reaction, strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			return printComment(cmd.OutOrStdout(), opts.Format, "edited", c)
		},
	}
	addReactionFlag(cmd, opts)

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id> <comment-id>",
		Short: "Delete one of your comments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			v, err := e.session().OpenThread(ctx, args[0])
			if err != nil {
				return err
			}
			if err := e.session().DeleteComment(ctx, v, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted comment %s\n", args[1])
			return nil
		},
	}
}
