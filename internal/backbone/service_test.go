package backbone

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetsim/internal/engine"
	"fleetsim/internal/logging"
	"fleetsim/internal/topics"
)

func getFreeMQTTPort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func setupBroker(t *testing.T) int {
	port := getFreeMQTTPort(t)
	b, err := StartEmbeddedBroker(fmt.Sprintf("127.0.0.1:%d", port), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	time.Sleep(50 * time.Millisecond)
	return port
}

func createMQTTClient(t *testing.T, port int, clientID string) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://127.0.0.1:%d", port))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		t.Fatalf("MQTT connect timeout")
	}
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(250) })
	return client
}

func newService(t *testing.T, port int, id string) *Service {
	s := New(Config{
		Host:              "127.0.0.1",
		Port:              port,
		ClientID:          id,
		HeartbeatInterval: 50 * time.Millisecond,
		Topics:            topics.New("test"),
		Logger:            logging.Nop(),
	})
	return s
}

type inbox struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (i *inbox) handler(_ mqtt.Client, m mqtt.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.msgs == nil {
		i.msgs = make(map[string][][]byte)
	}
	i.msgs[m.Topic()] = append(i.msgs[m.Topic()], append([]byte(nil), m.Payload()...))
}

func (i *inbox) last(topic string) []byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	ms := i.msgs[topic]
	if len(ms) == 0 {
		return nil
	}
	return ms[len(ms)-1]
}

func (i *inbox) count(topic string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs[topic])
}

func TestHeartbeatAndCommands(t *testing.T) {
	port := setupBroker(t)
	svc := newService(t, port, "backbone-test")

	var mu sync.Mutex
	var got []string
	svc.SetCommandHandler(func(ctx context.Context, topic string, payload []byte) {
		mu.Lock()
		got = append(got, topic)
		mu.Unlock()
	})
	svc.SetHealthSources(func(context.Context) error { return nil }, func() []string { return []string{"a", "b"} })
	require.NoError(t, svc.Connect(context.Background()))
	t.Cleanup(svc.Close)

	box := &inbox{}
	observer := createMQTTClient(t, port, "observer")
	require.True(t, observer.Subscribe("test/#", 1, box.handler).WaitTimeout(5*time.Second))

	require.Eventually(t, func() bool { return box.count("test/status/server") >= 2 }, 3*time.Second, 10*time.Millisecond)
	var hb ServerStatus
	require.NoError(t, json.Unmarshal(box.last("test/status/server"), &hb))
	assert.Equal(t, "online", hb.Status)
	assert.True(t, hb.StoreConnected)
	assert.Equal(t, 2, hb.ActiveSimulations)

	observer.Publish("test/cmd/simulation/start", 1, false, `{"profileId":"p1"}`).Wait()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "test/cmd/simulation/start", got[0])
	mu.Unlock()
}

func TestPublishingSurface(t *testing.T) {
	port := setupBroker(t)
	svc := newService(t, port, "backbone-pub")
	require.NoError(t, svc.Connect(context.Background()))
	t.Cleanup(svc.Close)

	box := &inbox{}
	observer := createMQTTClient(t, port, "observer-pub")
	require.True(t, observer.Subscribe("test/#", 1, box.handler).WaitTimeout(5*time.Second))

	svc.PublishSimulationStatus("p1", engine.Snapshot{ProfileID: "p1", NodeCount: 3, IsRunning: true})
	svc.PublishActiveIndex(nil)
	svc.PublishSimulationEvent(engine.Event{Type: engine.EventStarted, ProfileID: "p1", Time: time.Now()})
	svc.PublishSimulationLog("p1", "INFO", "hello")
	svc.PublishCommandResponse("c1", fmt.Errorf("boom"))
	corr := svc.PublishCommand("stop", "p1")

	require.Eventually(t, func() bool { return box.count("test/cmd/simulation/stop") == 1 }, 3*time.Second, 10*time.Millisecond)

	var st SimulationStatus
	require.NoError(t, json.Unmarshal(box.last("test/status/simulations/p1"), &st))
	assert.Equal(t, 3, st.NodeCount)
	assert.NotZero(t, st.Timestamp)

	var idx ActiveIndex
	require.NoError(t, json.Unmarshal(box.last("test/status/simulations/_index"), &idx))
	assert.Empty(t, idx.ProfileIDs)

	var ev EventMessage
	require.NoError(t, json.Unmarshal(box.last("test/events/simulation"), &ev))
	assert.Equal(t, "started", ev.Type)

	var resp CommandResponse
	require.NoError(t, json.Unmarshal(box.last("test/cmd-response/c1"), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)

	var cmd Command
	require.NoError(t, json.Unmarshal(box.last("test/cmd/simulation/stop"), &cmd))
	assert.Equal(t, OriginUI, cmd.Origin)
	assert.Equal(t, corr, cmd.CorrelationID)
	assert.Equal(t, "p1", cmd.ProfileID)
}

func TestRequestRoundTrip(t *testing.T) {
	port := setupBroker(t)
	server := newService(t, port, "backbone-server")
	server.SetCommandHandler(func(ctx context.Context, topic string, payload []byte) {
		var cmd Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return
		}
		server.PublishCommandResponse(cmd.CorrelationID, nil)
	})
	require.NoError(t, server.Connect(context.Background()))
	t.Cleanup(server.Close)

	client := New(Config{
		Host:     "127.0.0.1",
		Port:     port,
		ClientID: "backbone-client",
		Topics:   topics.New("test"),
		Logger:   logging.Nop(),
		Passive:  true,
	})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)

	time.Sleep(100 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := client.Request(ctx, "pause", "p1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestClearStatusRemovesRetained(t *testing.T) {
	port := setupBroker(t)
	svc := newService(t, port, "backbone-clear")
	require.NoError(t, svc.Connect(context.Background()))
	t.Cleanup(svc.Close)

	svc.PublishSimulationStatus("p9", engine.Snapshot{ProfileID: "p9"})
	time.Sleep(100 * time.Millisecond)
	svc.ClearSimulationStatus("p9")
	time.Sleep(100 * time.Millisecond)

	box := &inbox{}
	late := createMQTTClient(t, port, "late")
	require.True(t, late.Subscribe("test/status/simulations/p9", 1, box.handler).WaitTimeout(5*time.Second))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, box.count("test/status/simulations/p9"))
}
