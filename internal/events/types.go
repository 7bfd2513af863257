package events

import (
	"time"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
)

// EventTypeRegistrationCreated is emitted once per successful submission.
const EventTypeRegistrationCreated = "registration.created"

// RegistrationCreated is the queue payload for a stored registration.
type RegistrationCreated struct {
	EventID    string              `json:"event_id"`
	EventType  string              `json:"event_type"`
	Record     registration.Record `json:"record"`
	AssetKey   string              `json:"asset_key,omitempty"`
	Confirmed  bool                `json:"confirmed"`
	OccurredAt time.Time           `json:"occurred_at"`
}
