package messagelog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"
)

// ErrPayloadDecode is returned when a payload is not decodable as UTF-8 text.
var ErrPayloadDecode = errors.New("messagelog: payload is not valid UTF-8")

// ErrEmptyTopic is returned when a message arrives without a topic.
var ErrEmptyTopic = errors.New("messagelog: topic cannot be empty")

// jsonIndent is the indentation used for pretty-printed JSON payloads.
const jsonIndent = "  "

// Record is a single received message as presented to the user.
type Record struct {
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	QoS        byte      `json:"qos"`
	Retained   bool      `json:"retained"`
	ReceivedAt time.Time `json:"received_at"`
	Size       int       `json:"size"`
}

// ChangeKind identifies what happened to the log.
type ChangeKind string

// Change kinds.
const (
	ChangeAppended ChangeKind = "appended"
	ChangeCleared  ChangeKind = "cleared"
)

// Change describes one mutation of the log.
// Record is set only for ChangeAppended.
type Change struct {
	Kind   ChangeKind
	Record *Record
	Len    int
}

// Log is an append-ordered buffer of received messages, newest first.
type Log struct {
	mu       sync.RWMutex
	records  []Record
	limit    int
	onChange func(Change)
	now      func() time.Time
}

// New creates an empty Log.
//
// Parameters:
//   - limit: Maximum number of records kept (0 = unbounded)
//   - onChange: Called exactly once per mutation (may be nil)
func New(limit int, onChange func(Change)) *Log {
	if limit < 0 {
		limit = 0
	}
	return &Log{
		limit:    limit,
		onChange: onChange,
		now:      time.Now,
	}
}

// Append formats and prepends a received message.
//
// The payload is pretty-printed when it parses as JSON and kept verbatim
// otherwise. Payloads that are not valid UTF-8 return ErrPayloadDecode and
// leave the log untouched.
//
// Returns:
//   - Record: The stored record
//   - error: ErrEmptyTopic or ErrPayloadDecode
func (l *Log) Append(topic string, raw []byte, qos byte, retained bool) (Record, error) {
	if topic == "" {
		return Record{}, ErrEmptyTopic
	}
	if !utf8.Valid(raw) {
		return Record{}, fmt.Errorf("%w: topic %s (%d bytes)", ErrPayloadDecode, topic, len(raw))
	}

	rec := Record{
		Topic:      topic,
		Payload:    FormatPayload(raw),
		QoS:        qos,
		Retained:   retained,
		ReceivedAt: l.now(),
		Size:       len(raw),
	}

	l.mu.Lock()
	l.records = append(l.records, Record{})
	copy(l.records[1:], l.records)
	l.records[0] = rec
	if l.limit > 0 && len(l.records) > l.limit {
		l.records[l.limit] = Record{}
		l.records = l.records[:l.limit]
	}
	n := len(l.records)
	l.notify(Change{Kind: ChangeAppended, Record: &rec, Len: n})
	l.mu.Unlock()

	return rec, nil
}

// Clear empties the log and emits a single notification.
func (l *Log) Clear() {
	l.mu.Lock()
	l.records = nil
	l.notify(Change{Kind: ChangeCleared})
	l.mu.Unlock()
}

// Records returns a copy of the log, newest first.
func (l *Log) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of stored records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Limit returns the configured bound (0 = unbounded).
func (l *Log) Limit() int {
	return l.limit
}

// notify is called with l.mu held so listeners see changes in order.
func (l *Log) notify(c Change) {
	if l.onChange != nil {
		l.onChange(c)
	}
}

// FormatPayload renders a payload for display.
// JSON documents are indented; anything else is returned as-is.
func FormatPayload(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return string(raw)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", jsonIndent); err != nil {
		return string(raw)
	}
	return buf.String()
}
