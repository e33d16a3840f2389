package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	OperationSync   = "sync"
	OperationDelete = "delete"
)

// RecordSyncMessage announces a local record change to mirror. It carries
// only the table and record id; the worker reads the record from the local
// store, so a stale message still mirrors the latest state.
type RecordSyncMessage struct {
	Table     string    `json:"table"`
	RecordID  string    `json:"record_id"`
	Operation string    `json:"operation"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordSyncMessage(table, recordID, operation string, version int64) *RecordSyncMessage {
	if operation == "" {
		operation = OperationSync
	}
	return &RecordSyncMessage{
		Table:     table,
		RecordID:  recordID,
		Operation: operation,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *RecordSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordSyncMessageFromJSON decodes and validates a message body.
func RecordSyncMessageFromJSON(data []byte) (*RecordSyncMessage, error) {
	var msg RecordSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Table == "" || msg.RecordID == "" {
		return nil, errors.New("message missing table or record id")
	}
	if msg.Operation == "" {
		msg.Operation = OperationSync
	}
	if msg.Operation != OperationSync && msg.Operation != OperationDelete {
		return nil, errors.New("unknown operation " + msg.Operation)
	}
	return &msg, nil
}
