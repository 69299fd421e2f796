package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	defaultFeedURL       = "https://www.wienerlinien.at/ogd_realtime/trafficInfoList"
	defaultUpdatePeriod  = 60 * time.Second
	defaultWebListenAddr = ":8089"
)

// secretStore is implemented by *keybox.Keybox
type secretStore interface {
	Get(key string) (string, bool)
}

// Config holds the settings read from the keybox
type Config struct {
	DatabaseURI string
	// FirebaseCredentials is the JSON key of the Firebase service account
	FirebaseCredentials string
	FeedURL             string
	UpdatePeriod        time.Duration
	StatsdAddress       string
	StatsdPrefix        string
	WebListenAddr       string

	// MQTT gateway settings, the gateway is disabled when MQTTListenAddr is empty
	MQTTListenAddr   string
	MQTTWSListenAddr string
	MQTTCertPath     string
	MQTTKeyPath      string
}

// LoadConfig reads the configuration from secrets, applying defaults for the
// optional keys
func LoadConfig(secrets secretStore) (*Config, error) {
	config := &Config{
		FeedURL:       defaultFeedURL,
		UpdatePeriod:  defaultUpdatePeriod,
		WebListenAddr: defaultWebListenAddr,
	}

	var present bool
	config.DatabaseURI, present = secrets.Get("databaseURI")
	if !present || config.DatabaseURI == "" {
		return nil, errors.New("Database connection string not present in keybox")
	}

	config.FirebaseCredentials, present = secrets.Get("firebaseServiceAccount")
	if (!present || config.FirebaseCredentials == "") && !DEBUG {
		return nil, errors.New("Firebase service account credentials not present in keybox")
	}

	if uri, present := secrets.Get("wlFeedURI"); present && uri != "" {
		config.FeedURL = uri
	}

	if period, present := secrets.Get("wlUpdatePeriod"); present && period != "" {
		seconds, err := strconv.Atoi(period)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid wlUpdatePeriod %q: must be a positive number of seconds", period)
		}
		config.UpdatePeriod = time.Duration(seconds) * time.Second
	}

	config.StatsdAddress, _ = secrets.Get("statsdAddress")
	config.StatsdPrefix, _ = secrets.Get("statsdPrefix")

	if addr, present := secrets.Get("webListenAddr"); present && addr != "" {
		config.WebListenAddr = addr
	}

	config.MQTTListenAddr, _ = secrets.Get("mqttListenAddr")
	config.MQTTWSListenAddr, _ = secrets.Get("mqttWSListenAddr")
	config.MQTTCertPath, _ = secrets.Get("mqttCertPath")
	config.MQTTKeyPath, _ = secrets.Get("mqttKeyPath")
	return config, nil
}
