package payment

import "encoding/json"

// EventCheckoutCompleted is the only event type fulfillment handles; every
// other type is acknowledged and ignored.
const EventCheckoutCompleted = "checkout.session.completed"

// Event is the envelope of a processor webhook notification.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Session `json:"object"`
	} `json:"data"`
}

func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
