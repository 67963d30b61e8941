// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aiku/threadtag/pkg/app"
	"github.com/aiku/threadtag/pkg/config"
	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/conversation/mention"
)

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, cfg.Logging.Logger())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the directory refresh loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			a.Log.Info().Str("version", Tag).Str("commit", Commit).Msg("Starting threadtag")
			serveErr := a.Serve(ctx)
			a.Log.Info().Msg("Waiting for in-flight notifications")
			if err = a.Close(); err != nil {
				a.Log.Err(err).Msg("Failed to close store")
			}
			return serveErr
		},
	}
}

func submitCmd(use, short string, newComposer func(c *conversation.Controller, target string, author conversation.AuthorContext) *conversation.Composer) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			body := strings.Join(args[1:], " ")
			composer := newComposer(a.Controller(), args[0], conversation.AuthorContext{Name: author})
			composer.TextChanged(body, len(body))
			item, outcomes, err := composer.Submit(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s in %s\n", item.ID, item.ScopeID)
			printOutcomes(out, outcomes)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "author display name")
	return cmd
}

func postCmd() *cobra.Command {
	return submitCmd("post <scope> <body...>", "Create a post and notify the people it mentions",
		func(c *conversation.Controller, scope string, author conversation.AuthorContext) *conversation.Composer {
			return c.NewPostComposer(scope, author)
		})
}

func replyCmd() *cobra.Command {
	return submitCmd("reply <post-id> <body...>", "Reply to a post and notify the people it mentions",
		func(c *conversation.Controller, postID string, author conversation.AuthorContext) *conversation.Composer {
			return c.NewReplyComposer(postID, author)
		})
}

func printOutcomes(out io.Writer, outcomes []conversation.DeliveryOutcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "No one to notify")
		return
	}
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(out, "  ✗ %s <%s>: %v\n", o.Event.Recipient.DisplayName, o.Event.Recipient.Address, o.Err)
		} else {
			fmt.Fprintf(out, "  ✓ %s <%s>\n", o.Event.Recipient.DisplayName, o.Event.Recipient.Address)
		}
	}
}

func threadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread <scope>",
		Short: "List the posts of a scope with their replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl := a.Controller()
			posts, err := ctrl.Thread(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(posts) == 0 {
				fmt.Fprintln(out, "No posts")
				return nil
			}
			for _, post := range posts {
				fmt.Fprintf(out, "%s  %s (%s)\n    %s\n", post.ID, authorName(post), humanize.Time(post.CreatedAt), post.Body)
				replies, err := ctrl.Replies(cmd.Context(), post.ID)
				if err != nil {
					return err
				}
				for _, reply := range replies {
					fmt.Fprintf(out, "    ↳ %s (%s): %s\n", authorName(reply), humanize.Time(reply.CreatedAt), reply.Body)
				}
			}
			return nil
		},
	}
}

func authorName(item *conversation.ContentItem) string {
	if item.AuthorName == "" {
		return "anonymous"
	}
	return item.AuthorName
}

func suggestCmd() *cobra.Command {
	var cursor int
	cmd := &cobra.Command{
		Use:   "suggest <text>",
		Short: "Show the directory matches for the mention being typed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			text := args[0]
			if !cmd.Flags().Changed("cursor") {
				cursor = len(text)
			}
			out := cmd.OutOrStdout()
			suggestions := a.Controller().TextChanged(text, cursor)
			if len(suggestions) == 0 {
				fmt.Fprintln(out, "No suggestions")
				return nil
			}
			for _, s := range suggestions {
				applied, _ := conversation.ApplySuggestion(text, s.Start, s.End, s.DisplayName)
				fmt.Fprintf(out, "%s <%s>  ->  %q\n", s.DisplayName, s.Address, applied)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cursor, "cursor", 0, "cursor byte offset (defaults to the end of the text)")
	return cmd
}

func mentionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mentions <text>",
		Short: "Show the mentions in a text and who they resolve to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			dir := a.Controller().Directory()
			tokens := mention.Extract(args[0])
			if len(tokens) == 0 {
				fmt.Fprintln(out, "No mentions")
				return nil
			}
			for _, tok := range tokens {
				ident, ok := dir.Resolve(tok.Text)
				if !ok {
					fmt.Fprintf(out, "@%s [%d:%d]  unresolved\n", tok.Text, tok.Start, tok.End)
					continue
				}
				fmt.Fprintf(out, "@%s [%d:%d]  %s <%s>\n", tok.Text, tok.Start, tok.End, ident.ID, ident.Address)
			}
			return nil
		},
	}
}

func exampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config",
		Short: "Print the example config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), config.ExampleConfig)
			return err
		},
	}
}
