package canvas

import (
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Objects are stored as string-to-string maps (hashes) so that individual
// fields - most importantly owned_by - remain addressable by Redis-side
// scripts. Floats are formatted with strconv to round-trip exactly.

// ObjectToHash converts a CanvasObject to a Redis hash format.
func ObjectToHash(o *CanvasObject) map[string]interface{} {
	return map[string]interface{}{
		"id":            o.ID,
		"canvas_id":     o.CanvasID,
		"type":          string(o.Type),
		"x":             formatFloat(o.X),
		"y":             formatFloat(o.Y),
		"width":         formatFloat(o.Width),
		"height":        formatFloat(o.Height),
		"rotation":      formatFloat(o.Rotation),
		"fill":          o.Fill,
		"text":          o.Text,
		"font_size":     formatFloat(o.FontSize),
		"font_family":   o.FontFamily,
		"font_weight":   o.FontWeight,
		"text_align":    o.TextAlign,
		"z_index":       o.ZIndex,
		"owned_by":      o.OwnedBy,
		"created_by":    o.CreatedBy,
		"created_at_ms": o.CreatedAtMs,
		"updated_at_ms": o.UpdatedAtMs,
	}
}

// HashToObject converts a Redis hash to a CanvasObject.
// Numeric fields that fail to parse are treated as zero rather than
// rejecting the whole record; the durable hash may have been written by a
// newer client with fields this build does not know.
func HashToObject(hash map[string]string) (*CanvasObject, error) {
	zIndex, _ := strconv.Atoi(hash["z_index"])
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	obj := &CanvasObject{
		ID:          hash["id"],
		CanvasID:    hash["canvas_id"],
		Type:        ObjectType(hash["type"]),
		X:           parseFloat(hash["x"]),
		Y:           parseFloat(hash["y"]),
		Width:       parseFloat(hash["width"]),
		Height:      parseFloat(hash["height"]),
		Rotation:    parseFloat(hash["rotation"]),
		Fill:        hash["fill"],
		Text:        hash["text"],
		FontSize:    parseFloat(hash["font_size"]),
		FontFamily:  hash["font_family"],
		FontWeight:  hash["font_weight"],
		TextAlign:   hash["text_align"],
		ZIndex:      zIndex,
		OwnedBy:     hash["owned_by"],
		CreatedBy:   hash["created_by"],
		CreatedAtMs: createdAtMs,
		UpdatedAtMs: updatedAtMs,
	}

	return obj, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
