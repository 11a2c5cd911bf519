package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/printer"
	"github.com/easelhq/easel/internal/resolver"
	"github.com/easelhq/easel/pkg/canvas"
)

var showCmd = &cobra.Command{
	Use:   "show <object-id>",
	Short: "Show one canvas object",
	Long: `Show the full state of a single canvas object. The id may be a full
UUID or a unique prefix of at least 6 characters.

Example:
  easel show 3f81c2a9`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, client, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	objectID, err := resolver.ResolveObjectID(ctx, client, cfg.Canvas, args[0])
	if err != nil {
		if ambiguous, ok := err.(*resolver.AmbiguousError); ok {
			return printer.Error("Ambiguous object id", resolver.FormatAmbiguousError(ambiguous), nil)
		}
		return printer.Error("Cannot resolve object id", err.Error(), nil)
	}

	obj, err := client.GetObject(ctx, objectID)
	if err != nil {
		return printer.Error("Failed to fetch object", err.Error(), nil)
	}

	printer.Info("Object %s\n", obj.ID)
	printer.Printf("  type:      %s\n", obj.Type)
	printer.Printf("  position:  (%.1f, %.1f)\n", obj.X, obj.Y)
	printer.Printf("  size:      %g x %g\n", obj.Width, obj.Height)
	printer.Printf("  rotation:  %.1f°\n", obj.Rotation)
	printer.Printf("  fill:      %s\n", obj.Fill)
	if obj.Type == canvas.ObjectTypeTextbox {
		printer.Printf("  text:      %q (%s %g, %s)\n", obj.Text, obj.FontFamily, obj.FontSize, obj.TextAlign)
	}
	printer.Printf("  z-index:   %d\n", obj.ZIndex)
	printer.Printf("  ownership: %s\n", printer.OwnerBadge(obj.OwnedBy))
	printer.Printf("  created:   by %s at %s\n", obj.CreatedBy,
		time.UnixMilli(obj.CreatedAtMs).Format(time.RFC3339))
	printer.Printf("  updated:   %s\n",
		time.UnixMilli(obj.UpdatedAtMs).Format(time.RFC3339))

	return nil
}
