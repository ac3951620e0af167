package broadcaster

import (
	"bytes"
	"encoding/json"
	"time"
)

var nullPayload = json.RawMessage("null")

type Message struct {
	Id         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	CreateTime time.Time       `json:"createTime"`
	Channel    string          `json:"channel"`
	Payload    json.RawMessage `json:"payload"`
}

// IsNull reports whether the message carries an explicit null payload.
func (m Message) IsNull() bool {
	return len(m.Payload) == 0 || bytes.Equal(bytes.TrimSpace(m.Payload), nullPayload)
}

func (m Message) clone() Message {
	m.Payload = bytes.Clone(m.Payload)

	return m
}
