package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-walkthrough/internal/graph"
	"github.com/p-n-ai/pai-walkthrough/internal/navigator"
	"github.com/p-n-ai/pai-walkthrough/internal/report"
	"github.com/p-n-ai/pai-walkthrough/internal/walkthrough"
)

var errValidationFailed = errors.New("validation failed")

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "walk",
		Short:         "Work with questionnaire decision graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelError
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log loader diagnostics to stderr")

	root.AddCommand(newValidateCmd(), newPlayCmd(), newExportCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check graph files against the schema and for broken references",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				if !validateFile(cmd.Context(), out, path, strict) {
					failed++
				}
			}
			if failed > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d files failed\n", failed, len(args))
				return errValidationFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat dangling next_node references as errors")
	return cmd
}

// validateFile prints a report for one file and reports whether it passed.
func validateFile(ctx context.Context, out io.Writer, path string, strict bool) bool {
	g, err := graph.FileLoader{Path: path}.Load(ctx)
	if err != nil {
		fmt.Fprintf(out, "FAIL %s\n", path)
		var schemaErr *graph.SchemaError
		if errors.As(err, &schemaErr) {
			for _, v := range schemaErr.Violations {
				fmt.Fprintf(out, "  %s\n", v)
			}
		} else {
			fmt.Fprintf(out, "  %v\n", err)
		}
		return false
	}

	problems := g.Check()
	ok := !strict || len(graph.Errors(problems)) == 0
	status := "ok  "
	if !ok {
		status = "FAIL"
	}
	fmt.Fprintf(out, "%s %s (%d nodes)\n", status, path, g.Len())
	for _, p := range problems {
		fmt.Fprintf(out, "  %s\n", p)
	}
	return ok
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play <file>",
		Short: "Walk through a questionnaire in the terminal",
		Long: `Walk through a questionnaire in the terminal.

Answer with an option label or its number. "back" returns to the previous
question and "quit" leaves. An option with the same label takes precedence;
use "/back" or "/quit" then.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := graph.FileLoader{Path: args[0]}.Load(cmd.Context())
			if err != nil {
				return err
			}
			return play(g, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// play runs an interactive walkthrough until quit or end of input.
func play(g *graph.Graph, in io.Reader, out io.Writer) error {
	nav, err := navigator.New(g)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	notice := ""
	for {
		fmt.Fprintf(out, "%s\n> ", walkthrough.RenderText(nav.CurrentView(), notice))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		if label, ok := walkthrough.MatchOption(nav.CurrentView().Options, text); ok {
			notice = walkthrough.NoticeFor(nav.Advance(label))
			continue
		}

		switch strings.TrimPrefix(strings.ToLower(text), "/") {
		case "quit", "exit":
			return nil
		case "back":
			notice = walkthrough.NoticeFor(nav.GoBack())
			continue
		}
		notice = walkthrough.NoticeFor(nav.Advance(text))
	}
}

func newExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a graph's nodes and options to an .xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			g, err := graph.FileLoader{Path: path}.Load(cmd.Context())
			if err != nil {
				return err
			}

			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if output == "" {
				output = name + ".xlsx"
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			if err := report.WriteGraph(f, name, g); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <name>.xlsx)")
	return cmd
}
