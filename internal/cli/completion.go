package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// Candidate is one completion value with a description
type Candidate struct {
	Value       string
	Description string
}

// IDCompletion completes the first argument from load. Loader errors give
// no completions rather than failing the shell.
func IDCompletion(load func() ([]Candidate, error)) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		candidates, err := load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var completions []string
		prefix := strings.ToLower(toComplete)
		for _, c := range candidates {
			if strings.HasPrefix(strings.ToLower(c.Value), prefix) {
				completions = append(completions, cobra.CompletionWithDesc(c.Value, c.Description))
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}
