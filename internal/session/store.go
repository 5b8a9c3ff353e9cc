// Package session persists opaque session blobs keyed by session id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Store is the key-value contract used by the connection manager.
// Put has upsert semantics; Get reports absence with ok == false.
type Store interface {
	Get(ctx context.Context, sessionID string) (blob []byte, ok bool, err error)
	Put(ctx context.Context, sessionID string, blob []byte) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
	Close(ctx context.Context) error
}

var ErrEmptySessionID = errors.New("session id is empty")

func checkID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrEmptySessionID
	}
	return nil
}

// Record is what the gateway stores for its WhatsApp device.
type Record struct {
	JID             string    `json:"jid"`
	PushName        string    `json:"push_name,omitempty"`
	Platform        string    `json:"platform,omitempty"`
	PairedAt        time.Time `json:"paired_at"`
	LastConnectedAt time.Time `json:"last_connected_at,omitempty"`
}

func (r Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRecord(blob []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(blob, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// LoadRecord fetches and decodes a record; ok is false when absent.
func LoadRecord(ctx context.Context, s Store, sessionID string) (Record, bool, error) {
	blob, ok, err := s.Get(ctx, sessionID)
	if err != nil || !ok {
		return Record{}, ok, err
	}
	r, err := DecodeRecord(blob)
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func SaveRecord(ctx context.Context, s Store, sessionID string, r Record) error {
	blob, err := r.Encode()
	if err != nil {
		return err
	}
	return s.Put(ctx, sessionID, blob)
}
