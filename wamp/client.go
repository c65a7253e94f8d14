package wamp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"iotronic/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
)

// ErrCallTimeout is returned when a board does not answer within the call
// timeout. The caller is unblocked; board state is not rolled back.
var ErrCallTimeout = fmt.Errorf("wamp: call timed out")

// Client is the unified broker client (MQTT or Kafka). It carries the
// synchronous call primitive used for board RPC: publish a request envelope,
// wait on a correlation channel for the reply.
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	backend  string
	mqttConn mqtt.Client
	kafkaW   *kafkago.Writer
	kafkaRs  []*kafkago.Reader

	replyTopic string
	pendingMu  sync.Mutex
	pending    map[string]chan []byte
}

// NewClient creates a broker client based on config. The reply topic is
// derived from the client id so that concurrent conductors never share one.
func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{
		cfg:        cfg,
		backend:    cfg.Backend,
		replyTopic: Namespace + ".replies." + cfg.MQTT.ClientID,
		pending:    make(map[string]chan []byte),
	}
}

// Connect establishes the broker connection and subscribes the reply topic.
func (c *Client) Connect() error {
	c.mu.Lock()
	switch c.backend {
	case "mqtt":
		if err := c.connectMQTT(); err != nil {
			c.mu.Unlock()
			return err
		}
	case "kafka":
		c.connectKafka()
	default:
		c.mu.Unlock()
		return fmt.Errorf("unknown messaging backend: %s", c.backend)
	}
	c.mu.Unlock()
	return c.Subscribe(c.replyTopic, c.handleReply)
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	return nil
}

func (c *Client) connectKafka() {
	c.kafkaW = &kafkago.Writer{
		Addr:         kafkago.TCP(c.cfg.Kafka.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
}

// Publish sends a message to a topic.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.backend {
	case "mqtt":
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		token.Wait()
		return token.Error()
	case "kafka":
		if c.kafkaW == nil {
			return fmt.Errorf("kafka writer not initialized")
		}
		return c.kafkaW.WriteMessages(context.Background(), kafkago.Message{
			Topic: topic,
			Value: payload,
		})
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// PublishEnvelope encodes and publishes an envelope to the given topic.
func (c *Client) PublishEnvelope(topic string, env interface{ Encode() ([]byte, error) }) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(topic, data)
}

// Subscribe registers a handler for messages on a topic.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case "mqtt":
		if c.mqttConn == nil {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Payload())
		})
		token.Wait()
		return token.Error()
	case "kafka":
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: c.cfg.Kafka.GroupID + "." + topic,
		})
		c.kafkaRs = append(c.kafkaRs, reader)
		go func() {
			for {
				msg, err := reader.ReadMessage(context.Background())
				if err != nil {
					return
				}
				handler(msg.Value)
			}
		}()
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// Call publishes a request envelope to topic and waits for the correlated
// reply. The context bounds the wait; exceeding it returns ErrCallTimeout
// rather than hanging the caller.
func (c *Client) Call(ctx context.Context, topic, procedure string, args []any) (*Message, error) {
	req := NewRequest(procedure, args, c.replyTopic)

	ch := make(chan []byte, 1)
	c.pendingMu.Lock()
	c.pending[req.MsgID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MsgID)
		c.pendingMu.Unlock()
	}()

	if err := c.PublishEnvelope(topic, req); err != nil {
		return nil, fmt.Errorf("publish call: %w", err)
	}

	return c.awaitReply(ctx, ch)
}

// awaitReply blocks until the correlated reply arrives or the context ends.
// An expired deadline maps to ErrCallTimeout; caller cancellation surfaces
// as the wrapped context error so the two stay distinguishable.
func (c *Client) awaitReply(ctx context.Context, ch <-chan []byte) (*Message, error) {
	select {
	case body := <-ch:
		return Decode(body)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrCallTimeout
		}
		return nil, fmt.Errorf("call canceled: %w", ctx.Err())
	}
}

// CallTimeout returns the configured bound for synchronous calls.
func (c *Client) CallTimeout() time.Duration {
	if c.cfg.CallTimeout <= 0 {
		return 10 * time.Second
	}
	return c.cfg.CallTimeout
}

func (c *Client) handleReply(payload []byte) {
	reply, err := DecodeReply(payload)
	if err != nil {
		log.Printf("wamp: bad reply: %v", err)
		return
	}
	c.pendingMu.Lock()
	ch, ok := c.pending[reply.MsgID]
	c.pendingMu.Unlock()
	if !ok {
		// Late reply after the caller gave up. Drop it.
		return
	}
	select {
	case ch <- reply.Body:
	default:
	}
}

// IsConnected returns whether the broker connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.backend {
	case "mqtt":
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case "kafka":
		return c.kafkaW != nil
	default:
		return false
	}
}

// Close shuts down the broker connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
	for _, r := range c.kafkaRs {
		r.Close()
	}
	c.kafkaRs = nil
}
