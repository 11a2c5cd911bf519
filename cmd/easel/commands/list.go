package commands

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/printer"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the objects on the configured canvas",
	Long: `List every object on the configured canvas in paint order, with its
short id, type, geometry, z-index and current lease holder.

Example:
  easel list --config easel.yml`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, client, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	objects, err := client.ListObjects(ctx, cfg.Canvas)
	if err != nil {
		return printer.Error("Failed to list objects", err.Error(), nil)
	}

	if len(objects) == 0 {
		printer.Info("Canvas %q is empty.\n", cfg.Canvas)
		return nil
	}

	// Paint order: z-index ascending, creation time breaking ties
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].ZIndex != objects[j].ZIndex {
			return objects[i].ZIndex < objects[j].ZIndex
		}
		return objects[i].CreatedAtMs < objects[j].CreatedAtMs
	})

	printer.Info("%d objects on canvas %q:\n\n", len(objects), cfg.Canvas)
	for _, obj := range objects {
		printer.Printf("  %-8s  %-9s  at (%.0f, %.0f)  %gx%g  z=%d  %s\n",
			shortID(obj.ID), obj.Type, obj.X, obj.Y, obj.Width, obj.Height,
			obj.ZIndex, printer.OwnerBadge(obj.OwnedBy))
	}

	return nil
}
