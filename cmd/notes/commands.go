package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/notes/internal/api"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/fetcher"
)

// bodyFlags are the content flags shared by add and update
type bodyFlags struct {
	tags    []string
	text    []string
	content string
}

func (f *bodyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.tags, "tag", "t", nil, "tag (repeatable)")
	cmd.Flags().StringArrayVar(&f.text, "text", nil, "plain text paragraph (repeatable)")
	cmd.Flags().StringVar(&f.content, "content", "", "content as a JSON editor document")
	cmd.MarkFlagsMutuallyExclusive("text", "content")
}

func (f *bodyFlags) input(title string) (domain.NoteInput, error) {
	in := domain.NoteInput{Title: title, Tags: f.tags}

	switch {
	case f.content != "":
		content, err := domain.DecodeContent([]byte(f.content))
		if err != nil {
			return domain.NoteInput{}, fmt.Errorf("content must be a JSON object: %w", err)
		}
		in.Content = content
	default:
		in.Content = domain.TextDocument(f.text...)
	}
	return in, nil
}

func printNote(w io.Writer, n *domain.Note) {
	fmt.Fprintf(w, "ID:      %s\n", n.ID)
	fmt.Fprintf(w, "Title:   %s\n", n.Title)
	fmt.Fprintf(w, "Created: %s\n", n.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Updated: %s\n", n.UpdatedAt.Format("2006-01-02 15:04:05"))
	if len(n.Tags) > 0 {
		fmt.Fprintf(w, "Tags:    %s\n", strings.Join(n.Tags, ", "))
	}
	if text := domain.PlainText(n.Content); text != "" {
		fmt.Fprintf(w, "\n%s\n", text)
	}
}

func printList(w io.Writer, ns []domain.Note) {
	for _, n := range ns {
		line := fmt.Sprintf("%s  %s", shortID(n.ID), truncate(n.Title, 40))
		if len(n.Tags) > 0 {
			line += "  [" + strings.Join(n.Tags, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}
}

func (a *app) addCmd() *cobra.Command {
	var body bodyFlags

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a new note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := body.input(strings.Join(args, " "))
			if err != nil {
				return err
			}

			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := svc.Create(cmd.Context(), in)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added note: %s\n", n.ID)
			return nil
		},
	}

	body.register(cmd)
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notes, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			all, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}

			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notes yet. Use 'notes add' to create one.")
				return nil
			}

			printList(cmd.OutOrStdout(), all)
			return nil
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show note details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			// Find note by prefix
			id, err := resolveID(cmd.Context(), svc, args[0])
			if err != nil {
				return err
			}

			n, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			printNote(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var (
		body  bodyFlags
		title string
	)

	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Replace a note's title, content and tags",
		Long: "Replace a note's title, content and tags.\n\n" +
			"The note is replaced as a whole: tags and content not given are cleared.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := body.input(title)
			if err != nil {
				return err
			}

			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveID(cmd.Context(), svc, args[0])
			if err != nil {
				return err
			}

			n, err := svc.Update(cmd.Context(), id, in)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated note: %s\n", n.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "note title")
	cmd.MarkFlagRequired("title")
	body.register(cmd)
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete [id]",
		Aliases: []string{"rm"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := resolveID(cmd.Context(), svc, args[0])
			if err != nil {
				return err
			}

			if err := svc.Delete(cmd.Context(), id); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted note: %s\n", id)
			return nil
		},
	}
}

func (a *app) tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List all tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tags, err := svc.Tags(cmd.Context())
			if err != nil {
				return err
			}

			if len(tags) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tags yet.")
				return nil
			}

			for _, t := range tags {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)\n", t.Name, t.Count)
			}
			return nil
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search note titles and tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			found, err := svc.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching notes found.")
				return nil
			}

			printList(cmd.OutOrStdout(), found)
			return nil
		},
	}
}

func (a *app) clipCmd() *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "clip [url]",
		Short: "Create a note from the text of a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !fetcher.IsURL(args[0]) {
				return fmt.Errorf("not a URL: %s", args[0])
			}

			page, err := fetcher.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			title := page.Title
			if title == "" {
				title = page.URL
			}
			paragraphs := append([]string{page.URL}, page.Paragraphs...)

			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := svc.Create(cmd.Context(), domain.NoteInput{
				Title:   title,
				Content: domain.TextDocument(paragraphs...),
				Tags:    tags,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Clipped %s as note %s\n", page.URL, n.ID)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag (repeatable)")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			// The store lives as long as the server
			defer s.Close()

			server := api.New(svc, a.cfg.Addr, a.logger)
			server.ShutdownTimeout = a.cfg.ShutdownTimeout
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().StringP("addr", "a", "", "server address (default from config, :8001)")
	return cmd
}
