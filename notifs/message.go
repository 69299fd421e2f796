package notifs

import (
	"fmt"
	"strings"

	"github.com/underlx/disturbancesvie/types"
)

// ScreenDisturbanceDetail is the screen the mobile clients open when a
// disturbance notification is tapped. The spelling is what the clients match on.
const ScreenDisturbanceDetail = "distutbance_detail"

const (
	fallbackNewBody     = "Eine neue Störung ist aufgetreten."
	fallbackUpdatedBody = "Die Störung wurde aktualisiert."
)

// Message is a push notification addressed to a set of device tokens
type Message struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// NewMessage returns the notification for event addressed to tokens
func NewMessage(event *types.DisturbanceEvent, tokens []string) *Message {
	title, body := BuildMessage(event)
	return &Message{
		Tokens: tokens,
		Title:  title,
		Body:   body,
		Data:   Data(event),
	}
}

// BuildMessage returns the notification title and body for event
func BuildMessage(event *types.DisturbanceEvent) (title, body string) {
	names := lineNames(event.Disturbance)
	switch event.Kind {
	case types.UpdatedEvent:
		body = event.UpdateText
		if body == "" {
			body = fallbackUpdatedBody
		}
		return "Update: " + names, body
	case types.ResolvedEvent:
		return "Gelöst: " + names, fmt.Sprintf("Die Störung '%s' wurde gelöst.", event.Disturbance.Title)
	default:
		if latest := event.Disturbance.LatestDescription(); latest != nil {
			body = latest.Text
		}
		if body == "" {
			body = fallbackNewBody
		}
		return "Neu: " + names, body
	}
}

// Data returns the data payload sent along with the notification for event
func Data(event *types.DisturbanceEvent) map[string]string {
	return map[string]string{
		"disturbanceId": event.Disturbance.ID,
		"screen":        ScreenDisturbanceDetail,
	}
}

func lineNames(d *types.Disturbance) string {
	names := make([]string, len(d.Lines))
	for i, line := range d.Lines {
		names[i] = line.Name
	}
	return strings.Join(names, ", ")
}
