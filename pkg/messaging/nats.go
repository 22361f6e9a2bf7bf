// Package messaging wraps NATS JetStream for the three streams this
// platform moves data through: ingested quotes, triggered alerts, and
// collected news events.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type Client struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.Consumer
	mu        sync.RWMutex
}

type MessageHandler func(data []byte) error

func NewClient(natsURL string) (*Client, error) {
	nc, err := nats.Connect(natsURL,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Str("component", "messaging").Msg("nats connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("component", "messaging").Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("messaging: jetstream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{conn: nc, jetStream: js, ctx: ctx, cancel: cancel, consumers: make(map[string]jetstream.Consumer)}

	if err := c.setupStreams(); err != nil {
		log.Warn().Err(err).Str("component", "messaging").Msg("stream setup incomplete")
	}
	return c, nil
}

func (c *Client) setupStreams() error {
	streams := []jetstream.StreamConfig{
		{
			Name: "NEWS_STREAM", Subjects: []string{"news.*"},
			Description: "collected news and event predicates",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     10000, MaxBytes: 100 * 1024 * 1024, MaxAge: 7 * 24 * time.Hour,
		},
		{
			Name: "QUOTES_STREAM", Subjects: []string{"quotes.*"},
			Description: "ingested real-time/end-of-day quotes",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     100000, MaxBytes: 100 * 1024 * 1024, MaxAge: 24 * time.Hour,
		},
		{
			Name: "ALERTS_STREAM", Subjects: []string{"alerts.*"},
			Description: "triggered alert events awaiting notification",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     50000, MaxBytes: 50 * 1024 * 1024, MaxAge: 7 * 24 * time.Hour,
		},
	}
	for _, sc := range streams {
		if _, err := c.jetStream.CreateOrUpdateStream(c.ctx, sc); err != nil {
			log.Warn().Err(err).Str("stream", sc.Name).Msg("failed to create/update stream")
		}
	}
	return nil
}

func (c *Client) Publish(subject string, data interface{}) error {
	var payload []byte
	var err error
	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		if payload, err = json.Marshal(data); err != nil {
			return fmt.Errorf("messaging: marshal: %w", err)
		}
	}
	if _, err = c.jetStream.Publish(c.ctx, subject, payload); err != nil {
		return fmt.Errorf("messaging: publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) Subscribe(streamName, consumerName, filterSubject string, handler MessageHandler) error {
	cfg := jetstream.ConsumerConfig{
		Name:          consumerName,
		Description:   consumerName + " consumer",
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}
	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, streamName, cfg)
	if err != nil {
		return fmt.Errorf("messaging: create consumer %s: %w", consumerName, err)
	}

	c.mu.Lock()
	c.consumers[consumerName] = consumer
	c.mu.Unlock()

	go c.consumeMessages(consumer, consumerName, handler)
	return nil
}

func (c *Client) consumeMessages(consumer jetstream.Consumer, consumerName string, handler MessageHandler) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("consumer", consumerName).Msg("consumer crashed")
		}
	}()

	iter, err := consumer.Messages(jetstream.PullMaxMessages(10))
	if err != nil {
		log.Error().Err(err).Str("consumer", consumerName).Msg("failed to get message iterator")
		return
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			msg, err := iter.Next()
			if err != nil {
				if err == jetstream.ErrNoMessages {
					continue
				}
				log.Error().Err(err).Str("consumer", consumerName).Msg("failed to fetch message")
				time.Sleep(time.Second)
				continue
			}
			if err := handler(msg.Data()); err != nil {
				log.Warn().Err(err).Str("consumer", consumerName).Msg("handler failed, nak")
				msg.Nak()
			} else {
				msg.Ack()
			}
		}
	}
}

func (c *Client) CreateStream(config jetstream.StreamConfig) error {
	_, err := c.jetStream.CreateOrUpdateStream(c.ctx, config)
	return err
}

func (c *Client) DeleteConsumer(streamName, consumerName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.jetStream.DeleteConsumer(c.ctx, streamName, consumerName); err != nil {
		return err
	}
	delete(c.consumers, consumerName)
	return nil
}

func (c *Client) GetStreamInfo(streamName string) (*jetstream.StreamInfo, error) {
	stream, err := c.jetStream.Stream(c.ctx, streamName)
	if err != nil {
		return nil, err
	}
	return stream.Info(c.ctx)
}

func (c *Client) GetConsumerInfo(streamName, consumerName string) (*jetstream.ConsumerInfo, error) {
	consumer, err := c.jetStream.Consumer(c.ctx, streamName, consumerName)
	if err != nil {
		return nil, err
	}
	return consumer.Info(c.ctx)
}

func (c *Client) Close() error {
	c.cancel()
	time.Sleep(200 * time.Millisecond)
	c.mu.Lock()
	c.consumers = make(map[string]jetstream.Consumer)
	c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

func (c *Client) IsConnected() bool { return c.conn != nil && c.conn.IsConnected() }

func (c *Client) Stats() nats.Statistics {
	if c.conn != nil {
		return c.conn.Stats()
	}
	return nats.Statistics{}
}
