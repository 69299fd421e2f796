package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/gbl08ma/keybox"
	"github.com/gbl08ma/sqalx"
	"github.com/jmoiron/sqlx"
	"github.com/underlx/disturbancesvie/compute"
	"github.com/underlx/disturbancesvie/mqttgateway"
)

var (
	rdb           *sqlx.DB
	rootSqalxNode sqalx.Node
	secrets       *keybox.Keybox
	appConfig     *Config
	mainLog       = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	webLog        = log.New(os.Stdout, "web", log.Ldate|log.Ltime)

	disturbanceHandler *compute.DisturbanceHandler
	mqttGateway        *mqttgateway.MQTTGateway

	// GitCommit is provided by govvv at compile-time
	GitCommit = "???"
	// BuildDate is provided by govvv at compile-time
	BuildDate = "???"
)

func main() {
	var err error
	mainLog.Println("Server starting, opening keybox...")
	secrets, err = keybox.Open(SecretsPath)
	if err != nil {
		mainLog.Fatalln(err)
	}
	mainLog.Println("Keybox opened")

	appConfig, err = LoadConfig(secrets)
	if err != nil {
		mainLog.Fatalln(err)
	}

	mainLog.Println("Opening database...")
	rdb, err = sqlx.Open("postgres", appConfig.DatabaseURI)
	if err != nil {
		mainLog.Fatalln(err)
	}
	defer rdb.Close()

	err = rdb.Ping()
	if err != nil {
		mainLog.Fatalln(err)
	}
	rdb.SetMaxOpenConns(MaxDBconnectionPoolSize)

	rootSqalxNode, err = sqalx.New(rdb)
	if err != nil {
		mainLog.Fatalln(err)
	}
	mainLog.Println("Database opened")

	dispatcher, err := NewDispatcher(rootSqalxNode, appConfig)
	if err != nil {
		mainLog.Fatalln(err)
	}
	disturbanceHandler = compute.NewDisturbanceHandler(rootSqalxNode, dispatcher,
		log.New(os.Stdout, "reconcile", log.Ldate|log.Ltime))

	if appConfig.MQTTListenAddr != "" {
		err = SetUpMQTTGateway(appConfig)
		if err != nil {
			mainLog.Fatalln(err)
		}
		defer TearDownMQTTGateway()
	} else {
		mainLog.Println("MQTT listening address not present in keybox, MQTT gateway disabled")
	}

	go StatsSender(appConfig)
	go WebServer(appConfig)

	err = SetUpScrapers(appConfig)
	if err != nil {
		mainLog.Fatalln(err)
	}
	defer TearDownScrapers()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	mainLog.Println("Received", sig, "signal, shutting down")
}

// SetUpMQTTGateway starts the MQTT gateway and registers it for disturbance events
func SetUpMQTTGateway(config *Config) error {
	var err error
	mqttGateway, err = mqttgateway.New(mqttgateway.Config{
		Log:          log.New(os.Stdout, "mqttgateway", log.Ldate|log.Ltime),
		Node:         rootSqalxNode,
		ListenAddr:   config.MQTTListenAddr,
		WSListenAddr: config.MQTTWSListenAddr,
		TLSCertPath:  config.MQTTCertPath,
		TLSKeyPath:   config.MQTTKeyPath,
	})
	if err != nil {
		return err
	}
	err = mqttGateway.Start()
	if err != nil {
		return err
	}
	disturbanceHandler.AddPublisher(mqttGateway)
	return nil
}

// TearDownMQTTGateway stops the MQTT gateway
func TearDownMQTTGateway() {
	err := mqttGateway.Stop()
	if err != nil {
		mainLog.Println(err)
	}
}
