package commands

import (
	"context"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/printer"
)

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Show the online roster for the session",
	Long: `Show every collaborator currently tracked in the session presence hash
with their last heartbeat time. Entries past the staleness threshold may
still appear here until their peers sweep them.

Example:
  easel presence --config easel.yml`,
	RunE: runPresence,
}

func init() {
	rootCmd.AddCommand(presenceCmd)
}

func runPresence(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, client, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := client.PresenceSnapshot(ctx)
	if err != nil {
		return printer.Error("Failed to read presence", err.Error(), nil)
	}

	if len(entries) == 0 {
		printer.Info("Nobody is online in session %q.\n", cfg.Session)
		return nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })

	printer.Info("%d collaborators in session %q:\n\n", len(entries), cfg.Session)
	for _, entry := range entries {
		lastSeen := time.Since(time.UnixMilli(entry.LastSeenMs)).Round(time.Second)
		printer.Printf("  %-20s %s ", entry.DisplayName, entry.UserID)
		printer.Muted("(last seen %s ago)\n", lastSeen)
	}

	return nil
}
