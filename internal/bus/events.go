package bus

import (
	"encoding/json"
	"time"
)

// Event names posted by the settings store when a preference changes.
const (
	EventCurrencyChanged      = "settings.currency_changed"
	EventThemeChanged         = "settings.theme_changed"
	EventLanguageChanged      = "settings.language_changed"
	EventBudgetChanged        = "settings.budget_changed"
	EventNotificationsChanged = "settings.notifications_changed"
	EventSettingsReset        = "settings.reset"
)

// Event is a lightweight change notification. Value carries the new
// setting as a string so consumers don't need the full settings type.
type Event struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(name, value string) Event {
	return Event{Name: name, Value: value, Timestamp: time.Now()}
}

// ToJSON converts the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON creates an event from JSON bytes.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
