package models

// Operation is the kind of change carried by a SyncEvent.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EventScope is the granularity of the changed object.
type EventScope string

const (
	ScopeEntity   EventScope = "entity"
	ScopeDatabase EventScope = "database"
	ScopeTable    EventScope = "table"
)

// SyncEvent is one change notification from the source.
type SyncEvent struct {
	// ID is the transport-level identifier of the notification.
	ID           string     `json:"id"`
	Operation    Operation  `json:"operation"`
	Scope        EventScope `json:"scope"`
	RawOperation string     `json:"rawOperation,omitempty"`
	GUID         string     `json:"guid"`
	TypeName     string     `json:"typeName"`
	// Entity is set when the notification carried a usable inline payload;
	// nil events must be re-fetched from the source.
	Entity *Entity `json:"entity,omitempty"`
}

// IsDelete reports whether the event removes an entity.
func (e SyncEvent) IsDelete() bool { return e.Operation == OpDelete }
