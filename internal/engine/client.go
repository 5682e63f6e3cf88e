package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is the connection an engine publishes simulated telemetry on.
type Client interface {
	Publish(topic string, qos byte, retain bool, payload []byte) error
	Disconnect()
}

// ClientConfig describes one connection attempt.
type ClientConfig struct {
	URL              string
	ClientID         string
	Username         string
	Password         string
	ConnectTimeout   time.Duration
	OnConnectionLost func(error)
}

// Dialer opens a connected Client.
type Dialer func(ctx context.Context, cfg ClientConfig) (Client, error)

// brokerURL builds mqtt[s]://host:port, dropping any scheme already on host.
func brokerURL(host string, port int, tls bool) string {
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimRight(host, "/")
	scheme := "mqtt"
	if tls {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func isLocalhost(host string) bool {
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return host == "localhost" || host == "127.0.0.1"
}

// PahoDialer connects with the paho client. Client-side auto-reconnect is off;
// the engine decides when to reconnect.
func PahoDialer(ctx context.Context, cfg ClientConfig) (Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.ConnectTimeout)
	if strings.TrimSpace(cfg.Username) != "" {
		opts.SetUsername(cfg.Username)
	}
	if strings.TrimSpace(cfg.Password) != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.OnConnectionLost != nil {
		lost := cfg.OnConnectionLost
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { lost(err) })
	}
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	timer := time.NewTimer(cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return nil, err
		}
	case <-timer.C:
		c.Disconnect(0)
		return nil, fmt.Errorf("connect to %s timed out after %s", cfg.URL, cfg.ConnectTimeout)
	case <-ctx.Done():
		c.Disconnect(0)
		return nil, ctx.Err()
	}
	return &pahoClient{c: c, timeout: cfg.ConnectTimeout}, nil
}

type pahoClient struct {
	c       mqtt.Client
	timeout time.Duration
}

func (p *pahoClient) Publish(topic string, qos byte, retain bool, payload []byte) error {
	tok := p.c.Publish(topic, qos, retain, payload)
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return tok.Error()
}

// Disconnect closes immediately, discarding queued messages.
func (p *pahoClient) Disconnect() { p.c.Disconnect(0) }
