package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/printer"
	"github.com/easelhq/easel/pkg/canvas"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live session events",
	Long: `Subscribe to the session's broadcast channels and print every object
mutation, lease transition, and join/leave event as it arrives, until
interrupted. Cursor traffic is summarized rather than printed per event.

Example:
  easel watch --config easel.yml`,
	RunE: runWatchCmd,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, client, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	objSub, err := client.SubscribeObjectEvents(ctx)
	if err != nil {
		return printer.Error("Failed to subscribe to object events", err.Error(), nil)
	}
	defer objSub.Close()

	ownSub, err := client.SubscribeOwnershipEvents(ctx)
	if err != nil {
		return printer.Error("Failed to subscribe to ownership events", err.Error(), nil)
	}
	defer ownSub.Close()

	curSub, err := client.SubscribeCursorEvents(ctx)
	if err != nil {
		return printer.Error("Failed to subscribe to cursor events", err.Error(), nil)
	}
	defer curSub.Close()

	presSub, err := client.SubscribePresenceEvents(ctx)
	if err != nil {
		return printer.Error("Failed to subscribe to presence events", err.Error(), nil)
	}
	defer presSub.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	printer.Success("Watching session %q (Ctrl-C to stop)\n\n", cfg.Session)

	// Cursor events arrive at burst rates; count them and report once per
	// second instead of printing each one.
	cursorCounts := make(map[string]int)
	cursorTicker := time.NewTicker(time.Second)
	defer cursorTicker.Stop()

	for {
		select {
		case <-sigChan:
			printer.Info("\nStopped watching.\n")
			return nil

		case ev, ok := <-objSub.Events():
			if !ok {
				return nil
			}
			printObjectEvent(ev)

		case ev, ok := <-ownSub.Events():
			if !ok {
				return nil
			}
			printOwnershipEvent(ev)

		case ev, ok := <-curSub.Events():
			if !ok {
				return nil
			}
			cursorCounts[ev.DisplayName]++

		case ev, ok := <-presSub.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case canvas.EventPresenceJoined:
				printer.Event("%s is online\n", ev.Entry.DisplayName)
			case canvas.EventPresenceLeft:
				printer.Event("%s left\n", ev.Entry.DisplayName)
			}

		case <-cursorTicker.C:
			for name, count := range cursorCounts {
				printer.Muted("  %s moved their cursor %d times\n", name, count)
			}
			cursorCounts = make(map[string]int)

		case err, ok := <-objSub.Errors():
			if ok {
				printer.Warning("object event error: %v\n", err)
			}
		case err, ok := <-ownSub.Errors():
			if ok {
				printer.Warning("ownership event error: %v\n", err)
			}
		}
	}
}

func printObjectEvent(ev *canvas.ObjectEvent) {
	switch ev.Type {
	case canvas.EventObjectCreated:
		printer.Event("%s created %s %s\n", ev.OriginName, ev.Object.Type, shortID(ev.Object.ID))
	case canvas.EventObjectUpdated:
		printer.Event("%s updated %s\n", ev.OriginUserID, shortID(ev.Object.ID))
	case canvas.EventObjectDeleted:
		printer.Event("%s deleted %s\n", ev.OriginUserID, shortID(ev.ObjectID))
	case canvas.EventObjectsDeleted:
		printer.Event("%s deleted %d objects\n", ev.OriginUserID, len(ev.ObjectIDs))
	case canvas.EventObjectsDuplicated:
		printer.Event("%s duplicated %d objects\n", ev.OriginName, len(ev.Objects))
	}
}

func printOwnershipEvent(ev *canvas.OwnershipEvent) {
	switch ev.Type {
	case canvas.EventOwnershipClaimed:
		printer.Event("%s claimed %s\n", ev.OwnerName, shortID(ev.ObjectID))
	case canvas.EventOwnershipReleased:
		printer.Event("%s released %s\n", ev.FormerOwnerID, shortID(ev.ObjectID))
	case canvas.EventOwnershipRejected:
		printer.Warning("%s lost the claim race on %s to %s\n",
			ev.RequestingUserID, shortID(ev.ObjectID), ev.CurrentOwnerName)
	}
}
