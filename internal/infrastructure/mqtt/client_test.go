package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1,
			ClientID: "robolink-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     2,
		},
	}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"state", topics.RobotState("R1"), "robolink/state/R1"},
		{"ack", topics.RobotAck("R1"), "robolink/ack/R1"},
		{"all commands", topics.AllRobotCommands(), "robolink/command/+"},
		{"system status", topics.SystemStatus(), "robolink/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestRobotIDFromTopic(t *testing.T) {
	tests := []struct {
		topic   string
		want    string
		wantErr bool
	}{
		{topic: "robolink/command/R1", want: "R1"},
		{topic: "robolink/ack/arm-7", want: "arm-7"},
		{topic: "robolink/state/R2", want: "R2"},
		{topic: "robolink/command/", wantErr: true},
		{topic: "robolink/system/status", wantErr: true},
		{topic: "fleet/command/R1", wantErr: true},
		{topic: "robolink/command/R1/extra", wantErr: true},
		{topic: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := RobotIDFromTopic(tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Errorf("RobotIDFromTopic(%q) error = %v, want ErrInvalidTopic", tt.topic, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RobotIDFromTopic(%q) error = %v", tt.topic, err)
			}
			if got != tt.want {
				t.Errorf("RobotIDFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:1" {
		t.Errorf("brokerURL() with TLS = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "gw", Password: "pw"}

	opts := buildClientOptions(cfg)

	if opts.ClientID != "robolink-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "gw" || opts.Password != "pw" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect should be enabled")
	}
	if opts.MaxReconnectInterval != 2*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 2s", opts.MaxReconnectInterval)
	}
	if !opts.WillEnabled || opts.WillTopic != "robolink/system/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var will SystemStatus
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if will.Status != "offline" || will.Reason != "unexpected_disconnect" {
		t.Errorf("will = %+v", will)
	}
	if opts.TLSConfig != nil && !cfg.Broker.TLS {
		t.Error("TLS config set without TLS enabled")
	}
}

func TestStatusPayload(t *testing.T) {
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	var status SystemStatus
	if err := json.Unmarshal(statusPayload("gw-1", "online", "", at), &status); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := SystemStatus{Status: "online", ClientID: "gw-1", Timestamp: "2026-10-18T12:00:00Z"}
	if status != want {
		t.Errorf("status = %+v, want %+v", status, want)
	}
	if strings.Contains(string(statusPayload("gw-1", "online", "", at)), "reason") {
		t.Error("empty reason should be omitted")
	}
}

func TestConnectRefused(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	cfg := testConfig()
	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClientNotConnected(t *testing.T) {
	c := newClient(testConfig())

	if c.IsConnected() {
		t.Error("IsConnected() = true for new client")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Publish("robolink/state/R1", []byte("{}"), 1, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() = %v, want ErrNotConnected", err)
	}
	noop := func(string, []byte) error { return nil }
	if err := c.Subscribe("robolink/command/+", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newClient(testConfig())
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"wildcard plus", "robolink/state/+", nil, 1, ErrInvalidTopic},
		{"wildcard hash", "robolink/#", nil, 1, ErrInvalidTopic},
		{"qos too high", "robolink/state/R1", nil, 3, ErrInvalidQoS},
		{"payload too large", "robolink/state/R1", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newClient(testConfig())
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v", err)
	}
	if err := c.Subscribe("robolink/command/+", 4, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: %v", err)
	}
	if err := c.Subscribe("robolink/command/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestWrapHandler(t *testing.T) {
	tests := []struct {
		name      string
		handler   MessageHandler
		wantWarns int
		wantErrs  int
	}{
		{
			name:    "success",
			handler: func(string, []byte) error { return nil },
		},
		{
			name:      "error is logged",
			handler:   func(string, []byte) error { return errors.New("boom") },
			wantWarns: 1,
		},
		{
			name:     "panic is recovered",
			handler:  func(string, []byte) error { panic("handler exploded") },
			wantErrs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			c := newClient(testConfig())
			c.SetLogger(logger)

			c.wrapHandler(tt.handler)(nil, fakeMessage{topic: "robolink/command/R1", payload: []byte("go")})

			if len(logger.warns) != tt.wantWarns {
				t.Errorf("warns = %v, want %d", logger.warns, tt.wantWarns)
			}
			if len(logger.errs) != tt.wantErrs {
				t.Errorf("errors = %v, want %d", logger.errs, tt.wantErrs)
			}
		})
	}
}

func TestWrapHandlerPassesMessage(t *testing.T) {
	c := newClient(testConfig())
	var gotTopic, gotPayload string
	c.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	})(nil, fakeMessage{topic: "robolink/command/R9", payload: []byte("spin")})

	if gotTopic != "robolink/command/R9" || gotPayload != "spin" {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}
}
