package job

import (
	"errors"
	"fmt"
)

type Type string

const (
	TypeCreate Type = "CREATE"
	TypeUpdate Type = "UPDATE"
)

var ErrInvalid = errors.New("invalid job")

// Job asks the notifier to create or edit the channel message of one
// shipment. It carries no shipment state: the consumer always renders
// from a fresh read.
type Job struct {
	Type              Type   `json:"type"`
	RecordID          string `json:"record_id"`
	ExternalMessageID string `json:"external_message_id,omitempty"`
}

func NewCreate(recordID string) Job {
	return Job{Type: TypeCreate, RecordID: recordID}
}

func NewUpdate(recordID, externalMessageID string) Job {
	return Job{Type: TypeUpdate, RecordID: recordID, ExternalMessageID: externalMessageID}
}

func (j Job) Validate() error {
	if j.RecordID == "" {
		return fmt.Errorf("%w: missing record id", ErrInvalid)
	}
	switch j.Type {
	case TypeCreate:
		return nil
	case TypeUpdate:
		if j.ExternalMessageID == "" {
			return fmt.Errorf("%w: update without external message id", ErrInvalid)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, j.Type)
	}
}
