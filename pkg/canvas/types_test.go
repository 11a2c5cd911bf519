package canvas

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validObject() *CanvasObject {
	return &CanvasObject{
		ID:        uuid.New().String(),
		CanvasID:  "canvas-1",
		Type:      ObjectTypeRectangle,
		X:         10,
		Y:         20,
		Width:     100,
		Height:    50,
		Fill:      "#1e88e5",
		ZIndex:    1,
		OwnedBy:   UnclaimedOwner,
		CreatedBy: "user-1",
	}
}

func TestCanvasObjectValidate(t *testing.T) {
	t.Run("accepts valid object", func(t *testing.T) {
		assert.NoError(t, validObject().Validate())
	})

	t.Run("rejects non-UUID id", func(t *testing.T) {
		obj := validObject()
		obj.ID = "rect-1"
		err := obj.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid object ID")
	})

	t.Run("rejects empty canvas id", func(t *testing.T) {
		obj := validObject()
		obj.CanvasID = ""
		assert.Error(t, obj.Validate())
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		obj := validObject()
		obj.Type = "hexagon"
		err := obj.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown object type")
	})

	t.Run("rejects negative width", func(t *testing.T) {
		obj := validObject()
		obj.Width = -1
		assert.Error(t, obj.Validate())
	})

	t.Run("rejects negative height", func(t *testing.T) {
		obj := validObject()
		obj.Height = -0.5
		assert.Error(t, obj.Validate())
	})

	t.Run("rejects empty created_by", func(t *testing.T) {
		obj := validObject()
		obj.CreatedBy = ""
		assert.Error(t, obj.Validate())
	})

	t.Run("zero-size object is valid", func(t *testing.T) {
		obj := validObject()
		obj.Width = 0
		obj.Height = 0
		assert.NoError(t, obj.Validate())
	})
}

func TestObjectTypeValidate(t *testing.T) {
	for _, valid := range []ObjectType{ObjectTypeRectangle, ObjectTypeEllipse, ObjectTypeTriangle, ObjectTypeTextbox} {
		assert.NoError(t, valid.Validate())
	}

	assert.Error(t, ObjectType("").Validate())
	assert.Error(t, ObjectType("star").Validate())
}

func TestPresenceEntryValidate(t *testing.T) {
	t.Run("accepts valid entry", func(t *testing.T) {
		entry := &PresenceEntry{UserID: "user-1", DisplayName: "Sam", LastSeenMs: 1}
		assert.NoError(t, entry.Validate())
	})

	t.Run("rejects empty user id", func(t *testing.T) {
		entry := &PresenceEntry{DisplayName: "Sam"}
		assert.Error(t, entry.Validate())
	})

	t.Run("rejects empty display name", func(t *testing.T) {
		entry := &PresenceEntry{UserID: "user-1"}
		assert.Error(t, entry.Validate())
	})
}
