package main

import (
	"context"
	"log"
	"os"

	"github.com/gbl08ma/sqalx"
	"github.com/underlx/disturbancesvie/compute"
	"github.com/underlx/disturbancesvie/notifs"
)

// NewDispatcher returns the dispatcher for disturbance notifications, or nil
// when pushes are disabled
func NewDispatcher(node sqalx.Node, config *Config) (compute.EventDispatcher, error) {
	if config.FirebaseCredentials == "" {
		mainLog.Println("Firebase service account not present in keybox, push notifications disabled")
		return nil, nil
	}
	sender, err := notifs.NewFCMSender(context.Background(), config.FirebaseCredentials)
	if err != nil {
		return nil, err
	}
	return &notifs.Dispatcher{
		Sender:  sender,
		Devices: notifs.NodeDeviceStore{Node: node},
		Log:     log.New(os.Stdout, "notifs", log.Ldate|log.Ltime),
	}, nil
}
