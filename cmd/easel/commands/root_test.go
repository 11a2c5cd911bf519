package commands

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	// Create a fresh root command for testing
	testRoot := &cobra.Command{
		Use:   "easel",
		Short: "Test root command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	buf := new(bytes.Buffer)
	testRoot.SetOut(buf)
	testRoot.SetErr(buf)

	err := testRoot.Execute()

	assert.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Usage:", "Help should be displayed")
	assert.Contains(t, output, "easel", "Help should show command name")
}

func TestShortID(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "full UUID trimmed to 8 chars",
			input:    "3f81c2a9-1111-2222-3333-444455556666",
			expected: "3f81c2a9",
		},
		{
			name:     "short input unchanged",
			input:    "abc",
			expected: "abc",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, shortID(tc.input))
		})
	}
}
