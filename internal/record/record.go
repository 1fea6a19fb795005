package record

import "time"

// Speaker identifies who produced a record. Parties are distinguished by
// screen side only: party A renders on the right, party B on the left.
type Speaker string

const (
	SpeakerPartyA Speaker = "party_a"
	SpeakerPartyB Speaker = "party_b"
	SpeakerSystem Speaker = "system"
)

// Type classifies a record.
type Type string

const (
	// TypeText is an ordinary chat message.
	TypeText Type = "text"
	// TypeSystem is a centered system notice (recall, join, unparseable
	// center text).
	TypeSystem Type = "system"
	// TypeTimestamp is the non-text marker emitted for a recognized
	// timestamp span. It carries the parsed timestamp and no message text.
	TypeTimestamp Type = "timestamp"
)

// MessageRecord is one line of the raw or canonical stream. Field names and
// ordering are identical in both streams so downstream consumers can read
// either.
type MessageRecord struct {
	ID         int     `json:"id"`
	Timestamp  string  `json:"timestamp,omitempty"` // ISO-8601 with offset, empty if unknown
	Speaker    Speaker `json:"speaker"`
	Lang       string  `json:"lang"`
	Type       Type    `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // source image identifier
	ReplyTo    string  `json:"reply_to,omitempty"`
}

// Time parses the record timestamp. ok is false when the timestamp is absent
// or malformed.
func (r MessageRecord) Time() (t time.Time, ok bool) {
	if r.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
