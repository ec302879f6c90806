package bridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/usul27/pknx/knx"
	"github.com/usul27/pknx/tunnel"
)

// Bridge translates between the KNX bus and MQTT:
//   - observed group writes and responses become retained state messages
//   - command messages become group writes, reads, and toggles with acks
//   - health status is published periodically with an offline LWT
//
// Thread safety: all methods are safe for concurrent use.
type Bridge struct {
	cfg      Config
	mqtt     Publisher
	client   GroupClient
	recorder Recorder
	health   *HealthReporter

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// Publisher is the MQTT surface the bridge needs.
type Publisher interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool
}

// GroupClient is the tunnel surface the bridge needs. *tunnel.Tunnel
// satisfies it.
type GroupClient interface {
	GroupWrite(ctx context.Context, ga knx.GroupAddress, data []byte) error
	GroupRead(ctx context.Context, ga knx.GroupAddress, opts tunnel.ReadOptions) ([]byte, error)
	GroupToggle(ctx context.Context, ga knx.GroupAddress, useCache bool) error
	SetOnTelegram(callback func(knx.Telegram))
	State() tunnel.State
	Stats() tunnel.Stats
}

// Recorder receives every observed telegram for passive bus inventory.
// Optional; a nil recorder disables recording.
type Recorder interface {
	RecordTelegram(source knx.IndividualAddress, ga knx.GroupAddress, isResponse bool)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds everything needed to create a bridge.
type Options struct {
	// Config is the bridge configuration.
	Config Config

	// Publisher is the MQTT client.
	Publisher Publisher

	// Client is the KNX tunnel.
	Client GroupClient

	// Recorder is optional passive bus inventory.
	Recorder Recorder

	// Logger is optional structured logging.
	Logger Logger

	// Version is reported in health messages.
	Version string
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Publisher == nil {
		return nil, errors.New("bridge: publisher is required")
	}
	if opts.Client == nil {
		return nil, errors.New("bridge: group client is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	cfg := opts.Config.withDefaults()
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:       cfg,
		mqtt:      opts.Publisher,
		client:    opts.Client,
		recorder:  opts.Recorder,
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:    cfg.ID,
		TopicPrefix: cfg.TopicPrefix,
		Version:     opts.Version,
		Interval:    cfg.HealthInterval,
		Publisher:   opts.Publisher,
		Client:      opts.Client,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to command topics, hooks the telegram stream, and
// begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.client.SetOnTelegram(b.handleTelegram)

	commandTopic := CommandSubscribeTopic(b.cfg.TopicPrefix)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("bridge: subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}

	b.logInfo("bridge started", "bridge_id", b.cfg.ID, "prefix", b.cfg.TopicPrefix)
	return nil
}

// Stop shuts the bridge down: in-flight commands are cancelled and a
// final "stopping" status goes out.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.client.SetOnTelegram(nil)
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// handleTelegram publishes one observed telegram as a retained state
// message. Read requests carry no state and are only recorded.
func (b *Bridge) handleTelegram(tel knx.Telegram) {
	if b.recorder != nil {
		b.recorder.RecordTelegram(tel.Source, tel.Destination, tel.IsResponse())
	}

	service := ""
	switch {
	case tel.IsWrite():
		service = "write"
	case tel.IsResponse():
		service = "response"
	default:
		return
	}

	msg := StateMessage{
		Address:   tel.Destination.String(),
		Timestamp: tel.Timestamp.UTC(),
		Raw:       fmt.Sprintf("%X", tel.Data),
		Source:    tel.Source.String(),
		Service:   service,
	}

	if dpt, ok := b.cfg.DPT[tel.Destination.String()]; ok {
		value, err := DecodeValue(dpt, tel.Data)
		if err != nil {
			b.logWarn("state decode failed", "ga", msg.Address, "dpt", dpt, "error", err)
		} else {
			msg.DPT = dpt
			msg.Value = value
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := StateTopic(b.cfg.TopicPrefix, tel.Destination)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// handleCommandMessage parses the group address out of the topic and
// runs the command. Every command gets an ack, success or failure.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	encoded := parts[len(parts)-1]

	ga, err := knx.ParseGroupAddressFromURL(encoded)
	if err != nil {
		b.logError("invalid command topic", fmt.Errorf("topic %s: %w", topic, err))
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(ga, NewAckError(cmd, ga.String(), ErrCodeInvalidParameters,
			fmt.Sprintf("malformed command: %v", err)))
		return
	}

	b.logInfo("received command", "id", cmd.ID, "ga", ga.String(), "action", cmd.Action)

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.CommandTimeout)
	defer cancel()

	switch cmd.Action {
	case "write":
		b.executeWrite(ctx, cmd, ga)
	case "read":
		b.executeRead(ctx, cmd, ga)
	case "toggle":
		b.executeToggle(ctx, cmd, ga)
	default:
		b.publishAck(ga, NewAckError(cmd, ga.String(), ErrCodeInvalidCommand,
			fmt.Sprintf("unknown action: %q", cmd.Action)))
	}
}

func (b *Bridge) executeWrite(ctx context.Context, cmd CommandMessage, ga knx.GroupAddress) {
	data, err := b.resolveWritePayload(cmd, ga)
	if err != nil {
		b.publishAck(ga, NewAckError(cmd, ga.String(), ErrCodeInvalidParameters, err.Error()))
		return
	}

	if err := b.client.GroupWrite(ctx, ga, data); err != nil {
		b.publishAck(ga, NewAckError(cmd, ga.String(), errCodeFor(err), err.Error()))
		return
	}

	b.publishAck(ga, NewAckOK(cmd, ga))
}

func (b *Bridge) executeRead(ctx context.Context, cmd CommandMessage, ga knx.GroupAddress) {
	value, err := b.client.GroupRead(ctx, ga, tunnel.ReadOptions{UseCache: cmd.UseCache})
	if err != nil {
		b.publishAck(ga, NewAckError(cmd, ga.String(), errCodeFor(err), err.Error()))
		return
	}

	ack := NewAckOK(cmd, ga)
	ack.Raw = fmt.Sprintf("%X", value)
	if dpt := b.dptFor(cmd, ga); dpt != "" {
		if decoded, err := DecodeValue(dpt, value); err == nil {
			ack.Value = decoded
		}
	}
	b.publishAck(ga, ack)
}

func (b *Bridge) executeToggle(ctx context.Context, cmd CommandMessage, ga knx.GroupAddress) {
	if err := b.client.GroupToggle(ctx, ga, cmd.UseCache); err != nil {
		b.publishAck(ga, NewAckError(cmd, ga.String(), errCodeFor(err), err.Error()))
		return
	}
	b.publishAck(ga, NewAckOK(cmd, ga))
}

// resolveWritePayload turns a command into bus bytes: an explicit hex
// payload wins, otherwise the value is encoded via the datapoint type.
func (b *Bridge) resolveWritePayload(cmd CommandMessage, ga knx.GroupAddress) ([]byte, error) {
	if cmd.Raw != "" {
		data, err := hex.DecodeString(cmd.Raw)
		if err != nil {
			return nil, fmt.Errorf("invalid raw payload: %w", err)
		}
		return data, nil
	}

	dpt := b.dptFor(cmd, ga)
	if dpt == "" {
		return nil, fmt.Errorf("no datapoint type for %s; set dpt or raw", ga)
	}
	if cmd.Value == nil {
		return nil, errors.New("write command needs value or raw")
	}
	return EncodeValue(dpt, cmd.Value)
}

// dptFor resolves the datapoint type: command override first, then the
// configured map.
func (b *Bridge) dptFor(cmd CommandMessage, ga knx.GroupAddress) string {
	if cmd.DPT != "" {
		return cmd.DPT
	}
	return b.cfg.DPT[ga.String()]
}

func (b *Bridge) publishAck(ga knx.GroupAddress, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(b.cfg.TopicPrefix, ga), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
	if ack.Status == AckFailed && ack.Error != nil {
		b.logWarn("command failed", "ga", ack.Address, "code", ack.Error.Code, "message", ack.Error.Message)
	}
}

// errCodeFor maps tunnel errors to wire error codes.
func errCodeFor(err error) string {
	switch {
	case errors.Is(err, tunnel.ErrNotConnected), errors.Is(err, tunnel.ErrConnectionLost),
		errors.Is(err, tunnel.ErrClosed):
		return ErrCodeNotConnected
	case errors.Is(err, tunnel.ErrReadTimeout), errors.Is(err, tunnel.ErrAckTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ErrCodeBusTimeout
	case errors.Is(err, knx.ErrPayloadTooLarge), errors.Is(err, knx.ErrEmptyPayload),
		errors.Is(err, tunnel.ErrNotToggleable):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeProtocolError
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

var _ GroupClient = (*tunnel.Tunnel)(nil)
