package canvas

import (
	"fmt"

	"github.com/google/uuid"
)

// UnclaimedOwner is the sentinel value of an object's OwnedBy field when no
// user holds the edit lease. Stored as the empty string in Redis.
const UnclaimedOwner = ""

// CanvasObject is one shared geometric object on a canvas. Objects are
// mutated optimistically by their editing client and merged last-write-wins
// by everyone else; only the OwnedBy field has stronger semantics, changing
// exclusively through the owner compare-and-swap.
type CanvasObject struct {
	ID       string     `json:"id"`        // UUID - unique identifier for this object
	CanvasID string     `json:"canvas_id"` // Canvas this object belongs to
	Type     ObjectType `json:"type"`      // Shape variant

	// Geometry
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`    // Must be >= 0
	Height   float64 `json:"height"`   // Must be >= 0
	Rotation float64 `json:"rotation"` // Degrees

	// Style
	Fill string `json:"fill"` // Fill color (e.g. "#1e88e5")

	// Textbox-only fields; ignored for other types
	Text       string  `json:"text,omitempty"`
	FontSize   float64 `json:"font_size,omitempty"`
	FontFamily string  `json:"font_family,omitempty"`
	FontWeight string  `json:"font_weight,omitempty"`
	TextAlign  string  `json:"text_align,omitempty"`

	ZIndex int `json:"z_index"` // Paint order; ties broken by creation order

	OwnedBy     string `json:"owned_by"`      // User ID holding the edit lease, or UnclaimedOwner
	CreatedBy   string `json:"created_by"`    // User ID that created the object
	CreatedAtMs int64  `json:"created_at_ms"` // Unix milliseconds
	UpdatedAtMs int64  `json:"updated_at_ms"` // Unix milliseconds
}

// ObjectType defines the shape variant of a canvas object.
type ObjectType string

const (
	ObjectTypeRectangle ObjectType = "rectangle"
	ObjectTypeEllipse   ObjectType = "ellipse"
	ObjectTypeTriangle  ObjectType = "triangle"
	ObjectTypeTextbox   ObjectType = "textbox"
)

// EventType identifies a broadcast event on one of the session channels.
type EventType string

const (
	// Object channel events
	EventObjectCreated     EventType = "object_created"
	EventObjectUpdated     EventType = "object_updated"
	EventObjectDeleted     EventType = "object_deleted"
	EventObjectsDeleted    EventType = "objects_deleted"
	EventObjectsDuplicated EventType = "objects_duplicated"

	// Ownership channel events
	EventOwnershipClaimed  EventType = "ownership_claimed"
	EventOwnershipReleased EventType = "ownership_released"
	EventOwnershipRejected EventType = "ownership_rejected"

	// Presence channel events
	EventPresenceJoined EventType = "presence_joined"
	EventPresenceLeft   EventType = "presence_left"
)

// ObjectEvent is the payload broadcast on the object events channel for
// create/update/delete/duplicate mutations. Which fields are populated
// depends on Type:
//
//	object_created:     Object, OriginUserID, OriginName
//	object_updated:     Object, OriginUserID
//	object_deleted:     ObjectID, OriginUserID
//	objects_deleted:    ObjectIDs, OriginUserID
//	objects_duplicated: Objects, OriginalIDs, OriginUserID, OriginName
type ObjectEvent struct {
	Type         EventType       `json:"type"`
	Object       *CanvasObject   `json:"object,omitempty"`
	Objects      []*CanvasObject `json:"objects,omitempty"`
	ObjectID     string          `json:"object_id,omitempty"`
	ObjectIDs    []string        `json:"object_ids,omitempty"`
	OriginalIDs  []string        `json:"original_ids,omitempty"`
	OriginUserID string          `json:"origin_user_id"`
	OriginName   string          `json:"origin_name,omitempty"`
	TimestampMs  int64           `json:"timestamp_ms"`
}

// OwnershipEvent is the payload broadcast on the ownership events channel.
// Claimed events carry OwnerID/OwnerName/ClaimedAtMs/ExpiresAtMs, released
// events carry FormerOwnerID/ReleasedAtMs, and rejected events carry the
// requesting user plus the current owner's identity.
type OwnershipEvent struct {
	Type             EventType `json:"type"`
	ObjectID         string    `json:"object_id"`
	OwnerID          string    `json:"owner_id,omitempty"`
	OwnerName        string    `json:"owner_name,omitempty"`
	FormerOwnerID    string    `json:"former_owner_id,omitempty"`
	RequestingUserID string    `json:"requesting_user_id,omitempty"`
	CurrentOwnerID   string    `json:"current_owner_id,omitempty"`
	CurrentOwnerName string    `json:"current_owner_name,omitempty"`
	ClaimedAtMs      int64     `json:"claimed_at_ms,omitempty"`
	ExpiresAtMs      int64     `json:"expires_at_ms,omitempty"`
	ReleasedAtMs     int64     `json:"released_at_ms,omitempty"`
}

// CursorEvent is the payload broadcast on the cursor channel. Ephemeral and
// loss-tolerant; only the latest position per user matters.
type CursorEvent struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// PresenceEntry is one collaborator in the session roster.
type PresenceEntry struct {
	UserID            string   `json:"user_id"`
	DisplayName       string   `json:"display_name"`
	LastSeenMs        int64    `json:"last_seen_ms"`
	SelectedObjectIDs []string `json:"selected_object_ids,omitempty"`
}

// PresenceEvent is the advisory join/leave payload broadcast on the
// presence channel. The periodic snapshot remains the roster's source of
// truth; these events may be missed.
type PresenceEvent struct {
	Type  EventType     `json:"type"`
	Entry PresenceEntry `json:"entry"`
}

// Validate checks if the CanvasObject has valid field values.
func (o *CanvasObject) Validate() error {
	if !isValidUUID(o.ID) {
		return fmt.Errorf("invalid object ID: not a valid UUID")
	}

	if o.CanvasID == "" {
		return fmt.Errorf("canvas ID cannot be empty")
	}

	if err := o.Type.Validate(); err != nil {
		return fmt.Errorf("invalid object type: %w", err)
	}

	if o.Width < 0 {
		return fmt.Errorf("invalid width: must be >= 0, got %v", o.Width)
	}

	if o.Height < 0 {
		return fmt.Errorf("invalid height: must be >= 0, got %v", o.Height)
	}

	if o.CreatedBy == "" {
		return fmt.Errorf("created_by cannot be empty")
	}

	return nil
}

// Validate checks if the ObjectType is a valid enum value.
func (t ObjectType) Validate() error {
	switch t {
	case ObjectTypeRectangle, ObjectTypeEllipse, ObjectTypeTriangle, ObjectTypeTextbox:
		return nil
	default:
		return fmt.Errorf("unknown object type: %q", t)
	}
}

// Validate checks if the PresenceEntry has valid field values.
func (p *PresenceEntry) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if p.DisplayName == "" {
		return fmt.Errorf("display name cannot be empty")
	}
	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
