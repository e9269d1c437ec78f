package amqp

import (
	"encoding/json"
	"time"
)

// RefreshRequest asks the rates worker for an out-of-band fetch of one
// currency pair on one day. It carries only the pair and the day; the worker
// fetches the observation itself.
type RefreshRequest struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Date      string    `json:"date"` // YYYY-MM-DD
	Timestamp time.Time `json:"timestamp"`
}

func NewRefreshRequest(from, to, date string) *RefreshRequest {
	return &RefreshRequest{
		From:      from,
		To:        to,
		Date:      date,
		Timestamp: time.Now(),
	}
}

func (m *RefreshRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RefreshRequestFromJSON(data []byte) (*RefreshRequest, error) {
	var msg RefreshRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
