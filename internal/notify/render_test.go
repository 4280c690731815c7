package notify

import (
	"testing"
	"time"

	"freight/internal/domain/shipment"

	"github.com/stretchr/testify/require"
)

func fullShipment() *shipment.Shipment {
	return &shipment.Shipment{
		ID:     "test-shipment-123",
		Client: "Test Client Inc.",
		Status: shipment.StatusInTransit,
		Ports: []*shipment.Location{
			{Name: "Port A", North: 120, East: -45.5},
			{Name: "Port B", North: 7, East: 8},
		},
		Cargo: []shipment.CargoItem{
			{Name: "Widgets", Quantity: 100},
			{Name: "Gadgets", Quantity: 50},
		},
		DriverID:   "driver-1",
		DriverName: "Ada",
	}
}

func TestRenderFullShipment(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := NewRenderer(func() time.Time { return at }).Render(fullShipment())

	require.Equal(t, "New Logistics Order: test-shipment-123", msg.Content)
	require.Len(t, msg.Embeds, 1)

	embed := msg.Embeds[0]
	require.Equal(t, "🚛 Transport Work Order", embed.Title)
	require.Equal(t, "Client **Test Client Inc.** requires transport.", embed.Description)
	require.Equal(t, colorAssigned, embed.Color)
	require.Equal(t, "System ID: test-shipment-123", embed.Footer.Text)
	require.Equal(t, "2026-03-01T12:00:00Z", embed.Timestamp)

	require.Len(t, embed.Fields, 4)
	require.Equal(t, "**Port A**\n*(North: 120,East: -45.5)*", embed.Fields[0].Value)
	require.True(t, embed.Fields[0].Inline)
	require.Equal(t, "**Port B**\n*(North: 7,East: 8)*", embed.Fields[1].Value)
	require.True(t, embed.Fields[1].Inline)
	require.Equal(t, "**Status:** In-transit\n**Driver:** Ada", embed.Fields[2].Value)
	require.False(t, embed.Fields[2].Inline)
	require.Equal(t, "**100** x Widgets\n**50** x Gadgets", embed.Fields[3].Value)
}

func TestRenderIsPureExceptTimestamp(t *testing.T) {
	ticks := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
	}
	calls := 0
	renderer := NewRenderer(func() time.Time {
		tick := ticks[calls]
		calls++
		return tick
	})

	record := fullShipment()
	first := renderer.Render(record)
	second := renderer.Render(record)

	require.NotEqual(t, first.Embeds[0].Timestamp, second.Embeds[0].Timestamp)
	first.Embeds[0].Timestamp = ""
	second.Embeds[0].Timestamp = ""
	require.Equal(t, first, second)
}

func TestRenderFallbacks(t *testing.T) {
	renderer := NewRenderer(nil)

	cases := []struct {
		name   string
		record *shipment.Shipment
	}{
		{"nil ports", &shipment.Shipment{ID: "s1", Status: shipment.StatusScheduled}},
		{"nil port entries", &shipment.Shipment{ID: "s1", Ports: []*shipment.Location{nil, nil}}},
		{"single port", &shipment.Shipment{ID: "s1", Ports: []*shipment.Location{nil}}},
		{"nil record", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var embedFields []string
			require.NotPanics(t, func() {
				msg := renderer.Render(tc.record)
				for _, f := range msg.Embeds[0].Fields {
					embedFields = append(embedFields, f.Value)
				}
				require.Equal(t, colorUnassigned, msg.Embeds[0].Color)
				require.NotEmpty(t, msg.Embeds[0].Timestamp)
			})
			require.Equal(t, "unknown", embedFields[0])
			require.Equal(t, "unknown", embedFields[1])
			require.Contains(t, embedFields[2], "**Driver:** **Unassigned**")
			require.Equal(t, "No Cargo Listed", embedFields[3])
		})
	}
}

func TestRenderMissingPortName(t *testing.T) {
	record := &shipment.Shipment{
		ID:    "s1",
		Ports: []*shipment.Location{{North: 1, East: 2}, {Name: "Harbor"}},
		Cargo: []shipment.CargoItem{},
	}
	msg := NewRenderer(nil).Render(record)

	require.Equal(t, "**unknown**\n*(North: 1,East: 2)*", msg.Embeds[0].Fields[0].Value)
	require.Equal(t, "**Harbor**\n*(North: 0,East: 0)*", msg.Embeds[0].Fields[1].Value)
	require.Equal(t, "**Status:** Unknown\n**Driver:** **Unassigned**", msg.Embeds[0].Fields[2].Value)
	require.Equal(t, "No Cargo Listed", msg.Embeds[0].Fields[3].Value)
	require.Equal(t, "Client **Unknown** requires transport.", msg.Embeds[0].Description)
}

func TestRenderDriverNameWithoutID(t *testing.T) {
	record := fullShipment()
	record.DriverID = ""
	msg := NewRenderer(nil).Render(record)

	require.Equal(t, colorUnassigned, msg.Embeds[0].Color)
	require.Contains(t, msg.Embeds[0].Fields[2].Value, "**Driver:** Ada")
}
