package events

import "time"

// Interaction kinds the collector emits. The set is open: any non-empty type
// is stored, these are only the ones with extra validation rules.
const (
	EventTypeClick       = "click"
	EventTypeDoubleClick = "dblclick"
	EventTypeContextMenu = "contextmenu"
	EventTypeMouseDown   = "mousedown"
	EventTypeMouseUp     = "mouseup"
	EventTypeMouseMove   = "mousemove"
	EventTypePointerDown = "pointerdown"
	EventTypePointerUp   = "pointerup"
	EventTypeTouchStart  = "touchstart"
	EventTypeTouchEnd    = "touchend"
)

// pointerTypes are interaction kinds that only make sense with coordinates.
var pointerTypes = map[string]bool{
	EventTypeClick:       true,
	EventTypeDoubleClick: true,
	EventTypeContextMenu: true,
	EventTypeMouseDown:   true,
	EventTypeMouseUp:     true,
	EventTypeMouseMove:   true,
	EventTypePointerDown: true,
	EventTypePointerUp:   true,
	EventTypeTouchStart:  true,
	EventTypeTouchEnd:    true,
}

// IsPointerType reports whether events of this type must carry x and y.
func IsPointerType(eventType string) bool {
	return pointerTypes[eventType]
}

// InteractionEvent is one stored user interaction. Documents are written once
// and never updated.
type InteractionEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-" bson:"-"`
	SiteID     string    `gorm:"index:idx_site_type_path,priority:1;not null" json:"siteId" bson:"siteId"`
	Type       string    `gorm:"index:idx_site_type_path,priority:2;not null" json:"type" bson:"type"`
	Path       string    `gorm:"index:idx_site_type_path,priority:3" json:"path" bson:"path"`
	X          *float64  `json:"x,omitempty" bson:"x,omitempty"`
	Y          *float64  `json:"y,omitempty" bson:"y,omitempty"`
	Timestamp  int64     `json:"timestamp,omitempty" bson:"timestamp,omitempty"` // client epoch millis
	URL        string    `json:"url" bson:"url"`
	IngestedAt time.Time `gorm:"index;not null" json:"ingestedAt" bson:"ingestedAt"`
}

// TableName keeps the relational table aligned with the document collection.
func (InteractionEvent) TableName() string {
	return CollectionName
}

// CollectionName is the collection (or table) holding interaction events.
const CollectionName = "events"

// EventInput is one element of a batch as sent by the collector. It is a
// union keyed by Type; see Validate for the per-variant rules.
type EventInput struct {
	Type      string   `json:"type"`
	Path      string   `json:"path"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Timestamp int64    `json:"timestamp"`
}

// Validate checks the variant rules for the event's type.
func (e EventInput) Validate() error {
	if e.Type == "" {
		return NewValidationError("type", "is required")
	}
	if IsPointerType(e.Type) && (e.X == nil || e.Y == nil) {
		return NewValidationError("x/y", "are required for "+e.Type+" events")
	}
	return nil
}

// Batch is one ingestion call: events sharing a site and a page URL.
type Batch struct {
	SiteID string
	URL    string
	Events []EventInput
}

// PathCount is one row of an aggregation result.
type PathCount struct {
	Path  string `json:"path" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}
