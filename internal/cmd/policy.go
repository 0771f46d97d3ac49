package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var policyCmd = &cobra.Command{
	Use:   "policy [command...]",
	Short: "Show the effective sandbox policy or test a command against it",
	Long: `Without arguments, policy prints the sandbox rules reviewers run
under. With a command line as arguments, it reports whether the
sandbox would permit that command.`,
	RunE: runPolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
}

func runPolicy(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	policy := a.engine.Policy()

	if len(args) == 0 {
		data, err := yaml.Marshal(policy)
		if err != nil {
			return err
		}
		cmd.Print(string(data))
		return nil
	}

	command := strings.Join(args, " ")
	if policy.Permits(command) {
		cmd.Printf("%s %s\n", okStyle.Render("allowed"), command)
		return nil
	}
	cmd.Printf("%s %s\n", missingStyle.Render("denied"), command)
	return fmt.Errorf("command denied by sandbox policy")
}
