package backbone

import (
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// EmbeddedBroker is an in-process MQTT broker for development and tests.
type EmbeddedBroker struct {
	server *mochi.Server
	addr   string
	log    *slog.Logger
}

// StartEmbeddedBroker listens on addr (host:port) and accepts every client.
func StartEmbeddedBroker(addr string, log *slog.Logger) (*EmbeddedBroker, error) {
	if log == nil {
		log = slog.Default()
	}
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       log.With("component", "embedded-broker"),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add allow hook: %w", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "fleetsim-tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	b := &EmbeddedBroker{server: server, addr: addr, log: log}
	go func() {
		if err := server.Serve(); err != nil {
			log.Error("embedded broker stopped", "err", err)
		}
	}()
	return b, nil
}

// Addr returns the listen address.
func (b *EmbeddedBroker) Addr() string { return b.addr }

// Publish injects a message directly into the broker.
func (b *EmbeddedBroker) Publish(topic string, payload []byte, retain bool) error {
	return b.server.Publish(topic, payload, retain, 0)
}

// Close shuts the broker down.
func (b *EmbeddedBroker) Close() error {
	return b.server.Close()
}
