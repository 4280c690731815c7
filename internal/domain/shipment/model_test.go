package shipment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name     string
		from, to Status
		override bool
		wantErr  error
	}{
		{"forward", StatusScheduled, StatusInTransit, false, nil},
		{"skip ahead", StatusScheduled, StatusDelivered, false, nil},
		{"cancel scheduled", StatusScheduled, StatusCancelled, false, nil},
		{"cancel in transit", StatusInTransit, StatusCancelled, false, nil},
		{"same status", StatusInTransit, StatusInTransit, false, nil},
		{"backwards", StatusInTransit, StatusScheduled, false, ErrInvalidTransition},
		{"out of delivered", StatusDelivered, StatusInTransit, false, ErrInvalidTransition},
		{"out of cancelled", StatusCancelled, StatusScheduled, false, ErrInvalidTransition},
		{"staff override", StatusDelivered, StatusScheduled, true, nil},
		{"unknown status", StatusScheduled, Status("lost"), true, ErrInvalidStatus},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CanTransition(tc.from, tc.to, tc.override)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCanCancel(t *testing.T) {
	s := &Shipment{UserID: "u1", Status: StatusScheduled}
	require.NoError(t, s.CanCancel("u1"))
	require.ErrorIs(t, s.CanCancel("u2"), ErrForbidden)

	s.DriverID = "d1"
	require.ErrorIs(t, s.CanCancel("u1"), ErrDriverAssigned)

	s.DriverID = ""
	s.Status = StatusDelivered
	require.ErrorIs(t, s.CanCancel("u1"), ErrInvalidTransition)
}

func TestValidate(t *testing.T) {
	s := &Shipment{
		UserID: "u1",
		Ports:  []*Location{{Name: "A"}, {Name: "B"}},
		Cargo:  []CargoItem{{Name: "Planks", Quantity: 10}},
	}
	require.NoError(t, s.Validate())

	s.Ports = s.Ports[:1]
	require.ErrorIs(t, s.Validate(), ErrInvalidShipment)

	s.Ports = []*Location{{Name: "A"}, {Name: "B"}}
	s.Cargo = []CargoItem{{Name: "Planks", Quantity: 0}}
	require.ErrorIs(t, s.Validate(), ErrInvalidShipment)
}

func TestNotifyWorthyChange(t *testing.T) {
	base := &Shipment{
		Status: StatusScheduled,
		Ports:  []*Location{{Name: "A", North: 1, East: 2}, {Name: "B"}},
		Cargo:  []CargoItem{{Name: "Planks", Quantity: 10}},
	}
	clone := func() *Shipment {
		c := *base
		c.Ports = []*Location{{Name: "A", North: 1, East: 2}, {Name: "B"}}
		c.Cargo = append([]CargoItem(nil), base.Cargo...)
		return &c
	}

	same := clone()
	same.ExternalMessageID = "msg-1"
	require.False(t, NotifyWorthyChange(base, same))

	status := clone()
	status.Status = StatusInTransit
	require.True(t, NotifyWorthyChange(base, status))

	driver := clone()
	driver.DriverName = "Ada"
	require.True(t, NotifyWorthyChange(base, driver))

	port := clone()
	port.Ports[0].North = 5
	require.True(t, NotifyWorthyChange(base, port))

	cargo := clone()
	cargo.Cargo[0].Quantity = 11
	require.True(t, NotifyWorthyChange(base, cargo))
}
