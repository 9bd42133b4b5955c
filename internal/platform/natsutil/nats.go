package natsutil

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/todo-1m/todosync/internal/messaging"
	"github.com/todo-1m/todosync/internal/sharding"
)

type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

func ConnectJetStream(url, name string) (*Client, error) {
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	if err := messaging.EnsureStreams(js); err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, JS: js}, nil
}

func ConnectJetStreamWithRetry(url, name string, timeout time.Duration) (*Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ConnectJetStream(url, name)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("connect jetstream timeout after %s: %w", timeout, lastErr)
}

func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
	c.Conn.Close()
}

// Connected reports whether the underlying connection is usable.
func (c *Client) Connected() bool {
	return c != nil && c.Conn != nil && c.Conn.IsConnected()
}

// Publish matches todos.PublishFunc.
func (c *Client) Publish(subject string, payload []byte) error {
	_, err := c.JS.Publish(subject, payload)
	return err
}

// SubscribeChanges delivers notifications published from now on to handle.
// Messages are acked after handle returns, whatever its result.
func (c *Client) SubscribeChanges(handle func(*nats.Msg)) (*nats.Subscription, error) {
	return c.JS.Subscribe(sharding.AllEvents, func(msg *nats.Msg) {
		handle(msg)
		_ = msg.Ack()
	}, nats.DeliverNew(), nats.AckExplicit())
}
