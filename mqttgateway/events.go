package mqttgateway

import (
	"encoding/json"
	"strings"

	"github.com/gbl08ma/gmqtt/pkg/packets"
	"github.com/thoas/go-funk"
	"github.com/underlx/disturbancesvie/types"
	"github.com/vmihailenco/msgpack"
)

// Payload encodings, used as the first topic level
const (
	EncodingMsgpack = "msgpack"
	EncodingJSON    = "json"
)

// allLines is the topic level that matches events for every line
const allLines = "all"

// Topic is a parsed disturbance topic, {encoding}/disturbances/{line ID or "all"}
type Topic struct {
	Encoding string
	LineID   string
}

// Name returns the MQTT topic name
func (t Topic) Name() string {
	return t.Encoding + "/disturbances/" + t.LineID
}

// ParseTopic parses a topic name a client asked to subscribe to
func ParseTopic(name string) (Topic, bool) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[1] != "disturbances" || parts[2] == "" {
		return Topic{}, false
	}
	if parts[0] != EncodingMsgpack && parts[0] != EncodingJSON {
		return Topic{}, false
	}
	if strings.ContainsAny(parts[2], "+#") {
		return Topic{}, false
	}
	return Topic{Encoding: parts[0], LineID: parts[2]}, true
}

// ongoingKind is the kind used when sending the current state to a new subscriber
const ongoingKind = "ONGOING"

type disturbancePayload struct {
	Kind        string   `msgpack:"kind" json:"kind"`
	ID          string   `msgpack:"id" json:"id"`
	Title       string   `msgpack:"title" json:"title"`
	Type        string   `msgpack:"type" json:"type"`
	Lines       []string `msgpack:"lines" json:"lines"`
	Description string   `msgpack:"description" json:"description"`

	// Started and Ended are unix timestamps (seconds)
	Started int64 `msgpack:"started" json:"started"`
	Ended   int64 `msgpack:"ended,omitempty" json:"ended,omitempty"`
}

func buildDisturbancePayloadStruct(kind string, d *types.Disturbance, updateText string) disturbancePayload {
	p := disturbancePayload{
		Kind:    kind,
		ID:      d.ID,
		Title:   d.Title,
		Type:    string(d.Type),
		Lines:   d.LineIDs(),
		Started: d.StartTime.Unix(),
	}
	if updateText != "" {
		p.Description = updateText
	} else if latest := d.LatestDescription(); latest != nil {
		p.Description = latest.Text
	}
	if d.Ended {
		p.Ended = d.EndTime.Unix()
	}
	return p
}

func encodePayload(encoding string, structs []disturbancePayload) []byte {
	var encoded []byte
	var err error
	if encoding == EncodingJSON {
		encoded, err = json.Marshal(structs)
	} else {
		encoded, err = msgpack.Marshal(structs)
	}
	if err != nil {
		return []byte{}
	}
	return encoded
}

// topicsForDisturbance returns the topics where events concerning d are published
func topicsForDisturbance(d *types.Disturbance) []Topic {
	topics := []Topic{}
	lineIDs := append(d.LineIDs(), allLines)
	for _, encoding := range []string{EncodingMsgpack, EncodingJSON} {
		for _, lineID := range funk.UniqString(lineIDs) {
			topics = append(topics, Topic{Encoding: encoding, LineID: lineID})
		}
	}
	return topics
}

// PublishEvents publishes disturbance events to the topics of the affected lines
func (g *MQTTGateway) PublishEvents(events []*types.DisturbanceEvent) {
	for _, event := range events {
		payload := []disturbancePayload{buildDisturbancePayloadStruct(string(event.Kind), event.Disturbance, event.UpdateText)}
		for _, topic := range topicsForDisturbance(event.Disturbance) {
			g.server.Publish(&packets.Publish{
				Qos:       packets.QOS_0,
				TopicName: []byte(topic.Name()),
				Payload:   encodePayload(topic.Encoding, payload),
			})
		}
	}
}

// SendOngoingToClient sends the ongoing disturbances matching topic to a single client
func (g *MQTTGateway) SendOngoingToClient(clientID string, topic Topic) error {
	tx, err := g.Node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Commit() // read-only tx

	disturbances, err := types.GetOngoingDisturbances(tx)
	if err != nil {
		return err
	}

	structs := ongoingPayloadStructs(disturbances, topic.LineID)
	if len(structs) == 0 {
		return nil
	}

	g.server.Publish(&packets.Publish{
		Qos:       packets.QOS_0,
		TopicName: []byte(topic.Name()),
		Payload:   encodePayload(topic.Encoding, structs),
	}, clientID)
	return nil
}

func ongoingPayloadStructs(disturbances []*types.Disturbance, lineID string) []disturbancePayload {
	structs := []disturbancePayload{}
	for _, d := range disturbances {
		if lineID == allLines || funk.ContainsString(d.LineIDs(), lineID) {
			structs = append(structs, buildDisturbancePayloadStruct(ongoingKind, d, ""))
		}
	}
	return structs
}
