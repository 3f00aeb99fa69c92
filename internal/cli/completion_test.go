package cli

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
)

func TestIDCompletion(t *testing.T) {
	complete := IDCompletion(func() ([]Candidate, error) {
		return []Candidate{
			{Value: "client-customer-01A", Description: "Asha"},
			{Value: "64f0c1", Description: "Ravi"},
		}, nil
	})

	got, directive := complete(&cobra.Command{}, nil, "CLIENT")
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("directive = %v", directive)
	}
	if len(got) != 1 || got[0] != "client-customer-01A\tAsha" {
		t.Errorf("completions = %q", got)
	}

	got, _ = complete(&cobra.Command{}, []string{"already"}, "")
	if len(got) != 0 {
		t.Errorf("second argument should not complete, got %q", got)
	}
}

func TestIDCompletionLoaderError(t *testing.T) {
	complete := IDCompletion(func() ([]Candidate, error) { return nil, errors.New("db locked") })
	got, directive := complete(&cobra.Command{}, nil, "")
	if got != nil || directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("got %q, %v", got, directive)
	}
}
