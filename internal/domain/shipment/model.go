package shipment

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusInTransit Status = "in-transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound          = errors.New("shipment not found")
	ErrInvalidStatus     = errors.New("invalid shipment status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("permission denied")
	ErrDriverAssigned    = errors.New("driver already assigned")
	ErrInvalidShipment   = errors.New("invalid shipment")
)

// Location is one end of the route. North/East are in-game coordinates.
type Location struct {
	Name  string  `json:"name"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

type CargoItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// Shipment is the record every notification is rendered from.
// Ports holds [origin, destination]; entries may be nil on legacy rows.
type Shipment struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	Client            string      `json:"client"`
	Status            Status      `json:"status"`
	Ports             []*Location `json:"port"`
	Cargo             []CargoItem `json:"cargo"`
	DriverID          string      `json:"driver_id,omitempty"`
	DriverName        string      `json:"driver_name,omitempty"`
	ExternalMessageID string      `json:"external_message_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusInTransit:
		return 1
	case StatusDelivered:
		return 2
	}
	return -1
}

// CanTransition reports whether a shipment may move from one status to
// another. Without override the lifecycle only moves forward and
// terminal states are final; staff override accepts any valid status.
func CanTransition(from, to Status, override bool) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if override || from == to {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("%w: shipment is %s", ErrInvalidTransition, from)
	}
	if to == StatusCancelled {
		return nil
	}
	if to.rank() <= from.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Validate checks the invariants of a newly submitted shipment.
func (s *Shipment) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidShipment)
	}
	if len(s.Ports) != 2 || s.Ports[0] == nil || s.Ports[1] == nil {
		return fmt.Errorf("%w: exactly two ports are required", ErrInvalidShipment)
	}
	for _, item := range s.Cargo {
		if item.Name == "" || item.Quantity <= 0 {
			return fmt.Errorf("%w: cargo items need a name and a positive quantity", ErrInvalidShipment)
		}
	}
	return nil
}

// CanCancel applies the owner cancellation rules.
func (s *Shipment) CanCancel(requesterID string) error {
	if s.UserID != requesterID {
		return fmt.Errorf("%w: you do not own this shipment", ErrForbidden)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: cannot cancel shipment that is %s", ErrInvalidTransition, s.Status)
	}
	if s.DriverID != "" {
		return fmt.Errorf("%w: cannot cancel", ErrDriverAssigned)
	}
	return nil
}

// NotifyWorthyChange reports whether anything shown in the channel
// message differs between two snapshots.
func NotifyWorthyChange(before, after *Shipment) bool {
	if before == nil || after == nil {
		return true
	}
	if before.Status != after.Status ||
		before.Client != after.Client ||
		before.DriverID != after.DriverID ||
		before.DriverName != after.DriverName {
		return true
	}
	if len(before.Ports) != len(after.Ports) || len(before.Cargo) != len(after.Cargo) {
		return true
	}
	for i := range before.Ports {
		b, a := before.Ports[i], after.Ports[i]
		if (b == nil) != (a == nil) {
			return true
		}
		if b != nil && *b != *a {
			return true
		}
	}
	for i := range before.Cargo {
		if before.Cargo[i] != after.Cargo[i] {
			return true
		}
	}
	return false
}
