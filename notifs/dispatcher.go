package notifs

import (
	"fmt"
	"io"
	"log"

	"github.com/gbl08ma/sqalx"
	"github.com/underlx/disturbancesvie/types"
)

// DeviceStore gives access to the devices subscribed to lines
type DeviceStore interface {
	DeviceTokensForLines(lineIDs []string) ([]string, error)
	DeleteDevice(token string) error
}

// NodeDeviceStore is a DeviceStore backed by a sqalx node
type NodeDeviceStore struct {
	Node sqalx.Node
}

// DeviceTokensForLines implements DeviceStore
func (s NodeDeviceStore) DeviceTokensForLines(lineIDs []string) ([]string, error) {
	return types.GetDeviceTokensForLines(s.Node, lineIDs)
}

// DeleteDevice implements DeviceStore
func (s NodeDeviceStore) DeleteDevice(token string) error {
	return types.DeleteDeviceWithToken(s.Node, token)
}

// Report summarizes the fanout of one cycle
type Report struct {
	Pushes int
	Sent   int
	Failed int
	Pruned int
}

// Dispatcher fans events out to the devices subscribed to the affected lines
type Dispatcher struct {
	Sender  Sender
	Devices DeviceStore
	Log     *log.Logger
}

// Dispatch sends one multicast per event, in order, and deletes every device
// whose token the provider reports as failed. A provider error stops the
// fanout of the remaining events.
func (d *Dispatcher) Dispatch(events []*types.DisturbanceEvent) (*Report, error) {
	report := &Report{}
	for _, event := range events {
		lineIDs := event.Disturbance.LineIDs()
		if len(lineIDs) == 0 {
			continue
		}
		tokens, err := d.Devices.DeviceTokensForLines(lineIDs)
		if err != nil {
			return report, fmt.Errorf("Dispatch: %s", err)
		}
		if len(tokens) == 0 {
			continue
		}

		msg := NewMessage(event, tokens)
		d.logger().Printf("Sending %s notification for disturbance %s to %d devices", event.Kind, event.Disturbance.ID, len(tokens))
		result, err := d.Sender.SendMulticast(msg)
		report.Pushes++
		if result != nil {
			report.Sent += result.SuccessCount
			d.prune(result.Failures, report)
		}
		if err != nil {
			return report, fmt.Errorf("Dispatch: %s", err)
		}
	}
	return report, nil
}

func (d *Dispatcher) prune(failures []DeliveryFailure, report *Report) {
	for _, failure := range failures {
		report.Failed++
		err := d.Devices.DeleteDevice(failure.Token)
		if err != nil {
			d.logger().Printf("Failed to delete device %s: %s", shortToken(failure.Token), err)
			continue
		}
		d.logger().Printf("Deleted device %s (%s)", shortToken(failure.Token), failure.Reason)
		report.Pruned++
	}
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Log == nil {
		d.Log = log.New(io.Discard, "", 0)
	}
	return d.Log
}

func shortToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "…"
}
