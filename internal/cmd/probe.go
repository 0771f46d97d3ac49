package cmd

import (
	"context"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/provider"
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check which reviewer CLIs are available",
	Long: `Probe invokes each registered reviewer's version flag and reports
whether it is installed and responding.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	for _, name := range a.registry.Names() {
		caps, err := a.registry.Lookup(name)
		if err != nil {
			continue
		}
		adapter := provider.NewAdapter(caps, a.procs, a.logger)
		if adapter.Probe(ctx) {
			cmd.Printf("%s %s (%s)\n", okStyle.Render("✓"), caps.DisplayName, caps.Command)
		} else {
			cmd.Printf("%s %s not available; %s\n", missingStyle.Render("✗"), caps.DisplayName, caps.InstallHint)
		}
	}
	return nil
}
