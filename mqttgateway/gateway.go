package mqttgateway

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gbl08ma/gmqtt"
	"github.com/gbl08ma/gmqtt/pkg/packets"
	"github.com/gbl08ma/sqalx"
)

// MQTTGateway is a real-time gateway that streams disturbance events using the MQTT protocol.
// Clients can only subscribe, publishing is not allowed.
type MQTTGateway struct {
	Log          *log.Logger
	Node         sqalx.Node
	listenAddr   string
	wsListenAddr string
	tlsCertPath  string
	tlsKeyPath   string

	server   *gmqtt.Server
	stopChan chan interface{}
}

// MQTTGatewayStats contains stats about the gateway
type MQTTGatewayStats struct {
	CurrentClients       int `json:"currentClients"`
	CurrentSubscriptions int `json:"currentSubscriptions"`
	TotalConnects        int `json:"totalConnects"`
	TotalDisconnects     int `json:"totalDisconnects"`
}

var (
	stats   MQTTGatewayStats
	statsMu sync.Mutex
)

// Config contains runtime gateway configuration
type Config struct {
	Log          *log.Logger
	Node         sqalx.Node
	ListenAddr   string
	WSListenAddr string
	TLSCertPath  string
	TLSKeyPath   string
}

type userInfo struct {
	IsWebSocket bool
	ConnectedAt time.Time
}

// New returns a new MQTTGateway with the specified settings
func New(c Config) (*MQTTGateway, error) {
	g := &MQTTGateway{
		Log:          c.Log,
		Node:         c.Node,
		listenAddr:   c.ListenAddr,
		wsListenAddr: c.WSListenAddr,
		tlsCertPath:  c.TLSCertPath,
		tlsKeyPath:   c.TLSKeyPath,
		stopChan:     make(chan interface{}, 1),
	}
	if g.listenAddr == "" {
		return g, errors.New("MQTT listening address not set")
	}
	if !g.IsTLS() {
		g.Log.Println("TLS cert/key paths not present in keybox, will not use TLS")
	}
	return g, nil
}

// Stats returns stats about the MQTT gateway
func (g *MQTTGateway) Stats() *MQTTGatewayStats {
	statsMu.Lock()
	defer statsMu.Unlock()
	stats.CurrentClients = len(g.server.Monitor.Clients())
	stats.CurrentSubscriptions = len(g.server.Monitor.Subscriptions())
	return &MQTTGatewayStats{
		CurrentClients:       stats.CurrentClients,
		CurrentSubscriptions: stats.CurrentSubscriptions,
		TotalConnects:        stats.TotalConnects,
		TotalDisconnects:     stats.TotalDisconnects,
	}
}

// Start starts the MQTT gateway
func (g *MQTTGateway) Start() error {
	g.server = gmqtt.NewServer()
	g.stopChan = make(chan interface{}, 1)

	var ln net.Listener
	var err error
	if g.IsTLS() {
		crt, err := tls.LoadX509KeyPair(g.tlsCertPath, g.tlsKeyPath)
		if err != nil {
			return err
		}
		tlsConfig := &tls.Config{}
		tlsConfig.Certificates = []tls.Certificate{crt}
		ln, err = tls.Listen("tcp", g.listenAddr, tlsConfig)
		if err != nil {
			return err
		}
	} else {
		ln, err = net.Listen("tcp", g.listenAddr)
		if err != nil {
			return err
		}
	}
	g.server.AddTCPListenner(ln)

	if g.wsListenAddr != "" {
		ws := &gmqtt.WsServer{
			Server: &http.Server{Addr: g.wsListenAddr},
		}
		g.server.AddWebSocketServer(ws)
	}

	g.server.RegisterOnConnect(g.handleOnConnect)
	g.server.RegisterOnClose(g.handleOnClose)
	g.server.RegisterOnPublish(g.handleOnPublish)
	g.server.RegisterOnSubscribe(g.handleOnSubscribe)

	g.server.Run()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// disconnect clients that appear to be doing nothing
				for _, client := range g.server.Monitor.Clients() {
					if time.Since(client.ConnectedAt) > 30*time.Second && len(g.server.Monitor.ClientSubscriptions(client.ClientID)) == 0 {
						g.server.Client(client.ClientID).Close()
						g.Log.Println("Disconnected client", client.ClientID, "as it seemed idle")
					}
				}
			case <-g.stopChan:
				return
			}
		}
	}()
	g.Log.Println("MQTT broker started")
	return nil
}

// IsTLS returns whether this gateway operates over TLS
func (g *MQTTGateway) IsTLS() bool {
	return g.tlsCertPath != "" && g.tlsKeyPath != ""
}

// Stop stops the MQTT gateway
func (g *MQTTGateway) Stop() error {
	g.stopChan <- true
	return g.server.Stop(context.Background())
}

func (g *MQTTGateway) handleOnConnect(client *gmqtt.Client) (code uint8) {
	isWebSocket := client.ClientOptions().Username == "ws"
	if isWebSocket {
		g.Log.Println("WebSocket client connected to the MQTT gateway")
	} else {
		g.Log.Println("Client", client.ClientOptions().ClientID, "connected to the MQTT gateway")
	}
	client.SetUserData(userInfo{
		IsWebSocket: isWebSocket,
		ConnectedAt: time.Now(),
	})
	statsMu.Lock()
	stats.TotalConnects++
	statsMu.Unlock()
	return packets.CodeAccepted
}

func (g *MQTTGateway) handleOnClose(client *gmqtt.Client, err error) {
	statsMu.Lock()
	stats.TotalDisconnects++
	statsMu.Unlock()
	if client.UserData() == nil {
		g.Log.Println("Unknown client disconnected from the MQTT gateway")
		return
	}
	info := client.UserData().(userInfo)
	g.Log.Println("Client", client.ClientOptions().ClientID, "disconnected from the MQTT gateway after being connected for", time.Since(info.ConnectedAt))
}

func (g *MQTTGateway) handleOnSubscribe(client *gmqtt.Client, topic packets.Topic) uint8 {
	if client.UserData() == nil {
		return packets.SUBSCRIBE_FAILURE
	}
	info := client.UserData().(userInfo)

	t, ok := ParseTopic(topic.Name)
	if !ok {
		return packets.SUBSCRIBE_FAILURE
	}
	// browsers can't decode msgpack
	if info.IsWebSocket && t.Encoding != EncodingJSON {
		return packets.SUBSCRIBE_FAILURE
	}
	g.Log.Println("Client", client.ClientOptions().ClientID, "subscribed to", topic.Name)

	clientID := client.ClientOptions().ClientID
	go func() {
		if !info.IsWebSocket {
			time.Sleep(1 * time.Second)
		}
		err := g.SendOngoingToClient(clientID, t)
		if err != nil {
			g.Log.Println(err)
		}
	}()
	return topic.Qos
}

func (g *MQTTGateway) handleOnPublish(client *gmqtt.Client, publish *packets.Publish) bool {
	g.Log.Println("Client", client.ClientOptions().ClientID, "attempted publishing to", string(publish.TopicName), "and will be disconnected")
	client.Close()
	return false
}
