// Package backbone is the control-plane connection: retained status, events,
// logs and inbound commands on the system broker.
package backbone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"fleetsim/internal/engine"
	"fleetsim/internal/topics"
)

const (
	defaultHeartbeat = 10 * time.Second
	publishTimeout   = 5 * time.Second
	qos              = 1
)

// CommandHandler handles one inbound command message.
type CommandHandler func(ctx context.Context, topic string, payload []byte)

// MessageHandler receives raw messages from Subscribe.
type MessageHandler func(topic string, payload []byte)

// Config describes the system broker connection.
type Config struct {
	Host              string
	Port              int
	TLS               bool
	Username          string
	Password          string
	ClientID          string
	HeartbeatInterval time.Duration
	Topics            topics.Namespace
	Logger            *slog.Logger
	// Passive connections (ctl, monitor) neither heartbeat nor register the offline will.
	Passive bool
}

// Service owns the system broker connection.
type Service struct {
	cfg     Config
	log     *slog.Logger
	client  mqtt.Client
	started time.Time

	mu        sync.Mutex
	handler   CommandHandler
	storePing func(context.Context) error
	active    func() []string
	hbStop    chan struct{}
	subs      map[string]MessageHandler
}

// New creates a Service. Call Connect to open the connection.
func New(cfg Config) *Service {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Topics.Prefix() == "" {
		cfg.Topics = topics.New("")
	}
	if cfg.ClientID == "" {
		host, _ := os.Hostname()
		cfg.ClientID = "fleetsim-backbone-" + host
	}
	s := &Service{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "backbone"),
		started: time.Now(),
		subs:    make(map[string]MessageHandler),
	}

	scheme := "mqtt"
	if cfg.TLS {
		scheme = "mqtts"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetOrderMatters(false)
	if strings.TrimSpace(cfg.Username) != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if !cfg.Passive {
		will, _ := json.Marshal(ServerStatus{Status: "offline", Timestamp: time.Now().UnixMilli()})
		opts.SetBinaryWill(cfg.Topics.ServerStatus(), will, qos, true)
	}
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("system broker connection lost", "err", err)
		s.stopHeartbeat()
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// SetCommandHandler installs the handler for P/cmd/# messages.
func (s *Service) SetCommandHandler(h CommandHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// SetHealthSources wires the heartbeat to the store and the active simulation list.
func (s *Service) SetHealthSources(ping func(context.Context) error, active func() []string) {
	s.mu.Lock()
	s.storePing = ping
	s.active = active
	s.mu.Unlock()
}

// Topics returns the namespace in use.
func (s *Service) Topics() topics.Namespace { return s.cfg.Topics }

// Connect opens the connection. The client reconnects by itself afterwards.
func (s *Service) Connect(ctx context.Context) error {
	tok := s.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("connect to system broker: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.client.Disconnect(0)
		return ctx.Err()
	}
}

// IsConnected reports whether the connection is up.
func (s *Service) IsConnected() bool { return s.client.IsConnectionOpen() }

func (s *Service) onConnect(c mqtt.Client) {
	s.log.Info("connected to system broker", "client_id", s.cfg.ClientID)
	s.mu.Lock()
	subs := make(map[string]MessageHandler, len(s.subs))
	for topic, h := range s.subs {
		subs[topic] = h
	}
	s.mu.Unlock()
	for topic, h := range subs {
		go func() {
			if err := s.subscribe(topic, h); err != nil {
				s.log.Error("resubscribe", "topic", topic, "err", err)
			}
		}()
	}
	if s.cfg.Passive {
		return
	}
	s.startHeartbeat()

	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}
	tok := c.Subscribe(s.cfg.Topics.CommandWildcard(), qos, func(_ mqtt.Client, m mqtt.Message) {
		payload := append([]byte(nil), m.Payload()...)
		go h(context.Background(), m.Topic(), payload)
	})
	go func() {
		if tok.WaitTimeout(publishTimeout) && tok.Error() != nil {
			s.log.Error("subscribe to commands", "err", tok.Error())
		}
	}()
}

func (s *Service) startHeartbeat() {
	s.mu.Lock()
	if s.hbStop != nil {
		close(s.hbStop)
	}
	stop := make(chan struct{})
	s.hbStop = stop
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(s.cfg.HeartbeatInterval)
		defer t.Stop()
		s.publishHeartbeat()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				s.publishHeartbeat()
			}
		}
	}()
}

func (s *Service) stopHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop = nil
	}
}

func (s *Service) publishHeartbeat() {
	s.mu.Lock()
	ping, active := s.storePing, s.active
	s.mu.Unlock()

	st := ServerStatus{
		Status:        "online",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Timestamp:     time.Now().UnixMilli(),
	}
	if ping != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		st.StoreConnected = ping(ctx) == nil
		cancel()
	}
	if active != nil {
		st.ActiveSimulations = len(active())
	}
	s.publishJSON(s.cfg.Topics.ServerStatus(), true, st)
}

// publish is fire-and-forget; failures are logged per call.
func (s *Service) publish(topic string, retained bool, payload []byte) {
	tok := s.client.Publish(topic, qos, retained, payload)
	go func() {
		if !tok.WaitTimeout(publishTimeout) {
			s.log.Warn("publish timed out", "topic", topic)
			return
		}
		if err := tok.Error(); err != nil {
			s.log.Warn("publish failed", "topic", topic, "err", err)
		}
	}()
}

func (s *Service) publishJSON(topic string, retained bool, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode message", "topic", topic, "err", err)
		return
	}
	s.publish(topic, retained, data)
}

// PublishSimulationStatus publishes the retained status of one simulation.
func (s *Service) PublishSimulationStatus(id string, status engine.Snapshot) {
	s.publishJSON(s.cfg.Topics.SimulationStatus(id), true, SimulationStatus{Snapshot: status, Timestamp: time.Now().UnixMilli()})
}

// ClearSimulationStatus removes the retained status of one simulation.
func (s *Service) ClearSimulationStatus(id string) {
	s.publish(s.cfg.Topics.SimulationStatus(id), true, nil)
}

// PublishActiveIndex publishes the retained list of active simulations.
func (s *Service) PublishActiveIndex(ids []string) {
	if ids == nil {
		ids = []string{}
	}
	s.publishJSON(s.cfg.Topics.SimulationIndex(), true, ActiveIndex{ProfileIDs: ids, Timestamp: time.Now().UnixMilli()})
}

// PublishSystemEvent publishes a server-level event.
func (s *Service) PublishSystemEvent(eventType, message string) {
	s.publishJSON(s.cfg.Topics.SystemEvents(), false, EventMessage{Type: eventType, Message: message, Timestamp: time.Now().UnixMilli()})
}

// PublishSimulationEvent publishes an engine lifecycle event.
func (s *Service) PublishSimulationEvent(ev engine.Event) {
	s.publishJSON(s.cfg.Topics.SimulationEvents(), false, EventMessage{
		Type:      string(ev.Type),
		ProfileID: ev.ProfileID,
		NodeID:    ev.NodeID,
		Message:   ev.Message,
		Timestamp: ev.Time.UnixMilli(),
	})
}

// PublishSimulationLog publishes one log line of a simulation.
func (s *Service) PublishSimulationLog(id, level, msg string) {
	s.publishJSON(s.cfg.Topics.SimulationLogs(id), false, LogMessage{ProfileID: id, Level: level, Message: msg, Timestamp: time.Now().UnixMilli()})
}

// PublishCommandResponse answers the command with correlationID.
func (s *Service) PublishCommandResponse(correlationID string, cmdErr error) {
	resp := CommandResponse{CorrelationID: correlationID, Success: cmdErr == nil, Timestamp: time.Now().UnixMilli()}
	if cmdErr != nil {
		msg := cmdErr.Error()
		resp.Error = &msg
	}
	s.publishJSON(s.cfg.Topics.CommandResponse(correlationID), false, resp)
}

// PublishCommand announces a command already executed through a direct call.
// The origin tag keeps the dispatcher from executing it again.
func (s *Service) PublishCommand(action, profileID string) string {
	corr := uuid.NewString()
	s.publishJSON(s.cfg.Topics.Command(action), false, Command{
		ProfileID:     profileID,
		CorrelationID: corr,
		Origin:        OriginUI,
		Timestamp:     time.Now().UnixMilli(),
	})
	return corr
}

// Subscribe delivers messages on topic to h. The subscription is restored
// after a reconnect.
func (s *Service) Subscribe(topic string, h MessageHandler) error {
	if err := s.subscribe(topic, h); err != nil {
		return err
	}
	s.mu.Lock()
	s.subs[topic] = h
	s.mu.Unlock()
	return nil
}

func (s *Service) subscribe(topic string, h MessageHandler) error {
	tok := s.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		h(m.Topic(), m.Payload())
	})
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	return tok.Error()
}

// Request sends a remote command and waits for its correlated response.
func (s *Service) Request(ctx context.Context, action, profileID string) (CommandResponse, error) {
	corr := uuid.NewString()
	respTopic := s.cfg.Topics.CommandResponse(corr)
	ch := make(chan CommandResponse, 1)
	err := s.subscribe(respTopic, func(_ string, payload []byte) {
		var resp CommandResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			s.log.Warn("decode command response", "err", err)
			return
		}
		select {
		case ch <- resp:
		default:
		}
	})
	if err != nil {
		return CommandResponse{}, err
	}
	defer s.client.Unsubscribe(respTopic)

	data, _ := json.Marshal(Command{ProfileID: profileID, CorrelationID: corr, Origin: OriginCLI, Timestamp: time.Now().UnixMilli()})
	tok := s.client.Publish(s.cfg.Topics.Command(action), qos, false, data)
	if !tok.WaitTimeout(publishTimeout) {
		return CommandResponse{}, errors.New("publish command timed out")
	}
	if err := tok.Error(); err != nil {
		return CommandResponse{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return CommandResponse{}, fmt.Errorf("waiting for response to %s %s: %w", action, profileID, ctx.Err())
	}
}

// Close publishes the offline status and disconnects.
func (s *Service) Close() {
	s.stopHeartbeat()
	if !s.cfg.Passive && s.client.IsConnectionOpen() {
		data, _ := json.Marshal(ServerStatus{Status: "offline", UptimeSeconds: int64(time.Since(s.started).Seconds()), Timestamp: time.Now().UnixMilli()})
		tok := s.client.Publish(s.cfg.Topics.ServerStatus(), qos, true, data)
		tok.WaitTimeout(publishTimeout)
	}
	s.client.Disconnect(250)
}
