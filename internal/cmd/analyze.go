package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/errors"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/orchestrator"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/progress"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/tui"
)

var (
	analyzeProvider   string
	analyzeCouncil    bool
	analyzeJSON       bool
	analyzeNoProgress bool
	analyzeDir        string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [subject...]",
	Short: "Run a layered review of a code change",
	Long: `Analyze runs three parallel review passes over a code change, then a
synthesis pass that reconciles their findings. The subject describes
what to review; when omitted, the reviewers inspect the uncommitted
changes in the working tree.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeProvider, "provider", "p", "", "reviewer to use (claude, codex)")
	analyzeCmd.Flags().BoolVar(&analyzeCouncil, "council", false, "run every available reviewer per level and consolidate")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeNoProgress, "no-progress", false, "suppress the live progress view")
	analyzeCmd.Flags().StringVarP(&analyzeDir, "dir", "d", "", "repository to review (default: current directory)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	dir := analyzeDir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	subject := strings.Join(args, " ")
	if subject == "" {
		subject = "the uncommitted changes in the working tree (see `git diff` and `git diff --staged`)"
	}

	req := orchestrator.Request{
		RunID:    uuid.NewString(),
		Dir:      dir,
		Subject:  subject,
		Provider: analyzeProvider,
		Council:  analyzeCouncil || a.cfg.Engine.Council,
	}

	events, unsubscribe := a.engine.Subscribe(req.RunID)

	type settled struct {
		result *orchestrator.Result
		err    error
	}
	done := make(chan settled, 1)
	go func() {
		result, err := a.engine.Analyze(context.Background(), req)
		done <- settled{result, err}
	}()

	if analyzeNoProgress {
		unsubscribe()
	} else {
		viewErr := tui.Run(tui.Options{
			RunID:  req.RunID,
			Events: events,
			OnCancel: func() {
				_ = a.engine.Cancel(req.RunID)
			},
		})
		unsubscribe()
		if viewErr != nil {
			fmt.Fprintf(os.Stderr, "progress view error: %v\n", viewErr)
		}
	}

	s := <-done
	if s.err != nil && !errors.IsCancellation(s.err) {
		return s.err
	}
	return printResult(cmd, s.result)
}

var (
	verdictStyle    = lipgloss.NewStyle().Bold(true)
	severityStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	suggestionStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// printResult renders the settled run to stdout.
func printResult(cmd *cobra.Command, result *orchestrator.Result) error {
	if result == nil {
		return nil
	}

	if analyzeJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	if result.Status == progress.StatusCancelled {
		cmd.Println("run cancelled")
		return nil
	}

	if result.Synthesis == nil {
		cmd.Println("no synthesis produced")
		return nil
	}
	if !result.Synthesis.Parsed {
		// Degraded run: show the reviewer's prose as-is.
		cmd.Println(result.Synthesis.Raw)
		return nil
	}

	review, ok := result.Synthesis.Data.(map[string]any)
	if !ok {
		data, _ := json.MarshalIndent(result.Synthesis.Data, "", "  ")
		cmd.Println(string(data))
		return nil
	}

	if verdict, _ := review["verdict"].(string); verdict != "" {
		cmd.Println(verdictStyle.Render("verdict: " + verdict))
	}
	if summary, _ := review["summary"].(string); summary != "" {
		cmd.Println(summary)
	}

	suggestions, _ := review["suggestions"].([]any)
	for _, raw := range suggestions {
		s, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title, _ := s["title"].(string)
		severity, _ := s["severity"].(string)
		file, _ := s["file"].(string)

		line := "• " + title
		if severity != "" {
			line += " " + severityStyle.Render("["+severity+"]")
		}
		if file != "" {
			line += " (" + file + ")"
		}
		cmd.Println(suggestionStyle.Render(line))

		if body, _ := s["body"].(string); body != "" {
			cmd.Println(suggestionStyle.Render("  " + body))
		}
	}

	return nil
}
