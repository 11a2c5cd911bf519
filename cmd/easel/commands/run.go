package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/engine"
	"github.com/easelhq/easel/internal/printer"
	"github.com/easelhq/easel/pkg/canvas"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the session and run the sync engine",
	Long: `Join the configured session as the configured user and run the client
sync engine until interrupted. Object changes, lease transitions and roster
updates are printed as they are observed.

Example:
  easel run --config easel.yml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, client, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	eng, err := engine.New(cfg.EngineConfig(), client)
	if err != nil {
		return printer.Error("Failed to create engine", err.Error(), nil)
	}

	eng.UpdateCallbacks(engine.Callbacks{
		OnObjectsChanged: func(objects []*canvas.CanvasObject) {
			printer.Event("canvas now has %d objects\n", len(objects))
		},
		OnOwnershipChanged: func(objectID string, status engine.OwnershipStatus) {
			printer.Event("object %s is now %s\n", shortID(objectID), status)
		},
		OnClaimRejected: func(objectID, ownerID, ownerName string) {
			printer.Warning("claim on %s rejected: held by %s\n", shortID(objectID), ownerName)
		},
		OnSelectionCleared: func(objectID string) {
			printer.Warning("lease on %s expired, selection cleared\n", shortID(objectID))
		},
		OnRosterChanged: func(roster []canvas.PresenceEntry) {
			printer.Event("%d collaborators online\n", len(roster))
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		printer.Info("\nLeaving session...\n")
		cancel()
	}()

	printer.Success("Joined session %q as %s\n", cfg.Session, cfg.User.Name)

	if err := eng.Run(runCtx); err != nil {
		return printer.Error("Engine error", err.Error(), nil)
	}

	printer.Success("Left session %q\n", cfg.Session)
	return nil
}
