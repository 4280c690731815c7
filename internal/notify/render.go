package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"freight/internal/discord"
	"freight/internal/domain/shipment"
)

const (
	colorAssigned   = 5814783
	colorUnassigned = 15105570

	unknownLocation = "unknown"
	noCargo         = "No Cargo Listed"
	unassigned      = "**Unassigned**"
)

// Renderer turns a shipment into the channel message. Render never
// fails: every missing nested value has a fallback.
type Renderer struct {
	now func() time.Time
}

func NewRenderer(now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{now: now}
}

func (r *Renderer) Render(s *shipment.Shipment) discord.Message {
	if s == nil {
		s = &shipment.Shipment{}
	}

	client := s.Client
	if client == "" {
		client = "Unknown"
	}

	driver := unassigned
	if s.DriverName != "" {
		driver = s.DriverName
	}

	color := colorUnassigned
	if s.DriverID != "" {
		color = colorAssigned
	}

	return discord.Message{
		Content: "New Logistics Order: " + s.ID,
		Embeds: []discord.Embed{{
			Title:       "🚛 Transport Work Order",
			Description: fmt.Sprintf("Client **%s** requires transport.", client),
			Color:       color,
			Fields: []discord.Field{
				{Name: "📍 Pickup (Origin)", Value: formatLocation(portAt(s.Ports, 0)), Inline: true},
				{Name: "🏁 Drop off (Destination)", Value: formatLocation(portAt(s.Ports, 1)), Inline: true},
				{
					Name:  "📋 Assignment Details",
					Value: fmt.Sprintf("**Status:** %s\n**Driver:** %s", formatStatus(s.Status), driver),
				},
				{Name: "📦 Cargo Manifest", Value: formatCargo(s.Cargo)},
			},
			Footer:    &discord.Footer{Text: "System ID: " + s.ID},
			Timestamp: r.now().UTC().Format(time.RFC3339Nano),
		}},
	}
}

func portAt(ports []*shipment.Location, i int) *shipment.Location {
	if i < len(ports) {
		return ports[i]
	}
	return nil
}

func formatLocation(l *shipment.Location) string {
	if l == nil {
		return unknownLocation
	}
	name := l.Name
	if name == "" {
		name = unknownLocation
	}
	return fmt.Sprintf("**%s**\n*(North: %s,East: %s)*", name, formatNumber(l.North), formatNumber(l.East))
}

func formatCargo(items []shipment.CargoItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("**%s** x %s", formatNumber(item.Quantity), item.Name))
	}
	if len(lines) == 0 {
		return noCargo
	}
	return strings.Join(lines, "\n")
}

func formatStatus(status shipment.Status) string {
	if status == "" {
		return "Unknown"
	}
	first, size := utf8.DecodeRuneInString(string(status))
	return string(unicode.ToUpper(first)) + string(status)[size:]
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
