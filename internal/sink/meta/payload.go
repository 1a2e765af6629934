package meta

import "example.com/attribution/internal/pii"

type eventsRequest struct {
	AccessToken   string        `json:"access_token"`
	Data          []serverEvent `json:"data"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

type serverEvent struct {
	UserData       pii.HashedUserData `json:"user_data"`
	EventName      string             `json:"event_name"`
	EventTime      int64              `json:"event_time"`
	ActionSource   string             `json:"action_source"`
	EventSourceURL string             `json:"event_source_url,omitempty"`
	CustomData     *customData        `json:"custom_data,omitempty"`
	OptOut         bool               `json:"opt_out,omitempty"`
	EventID        string             `json:"event_id,omitempty"`
}

type customData struct {
	ContentIDs []string `json:"content_ids,omitempty"`
	Value      float64  `json:"value"`
	Currency   string   `json:"currency"`
	NumItems   int      `json:"num_items,omitempty"`
}
