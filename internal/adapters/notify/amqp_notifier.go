package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"delivery-dispatch-service/internal/ports"
)

const exchangeName = "dispatch_events"

// AMQPNotifier publishes driver/customer events to a topic exchange. Routing
// keys look like "driver.drv-1.offer_received"; downstream push services bind
// the patterns they care about. Delivery is best-effort by contract: callers
// log and swallow publish failures.
type AMQPNotifier struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

// Dial connects to the broker and declares the topic exchange.
func Dial(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notifier: dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notifier: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("notifier: declare exchange: %w", err)
	}

	return &AMQPNotifier{conn: conn, ch: ch}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, recipient ports.RecipientType, recipientID, event string, payload map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"recipient_type": recipient,
		"recipient_id":   recipientID,
		"event":          event,
		"payload":        payload,
		"sent_at":        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notifier: marshal %s event: %w", event, err)
	}

	key := fmt.Sprintf("%s.%s.%s", recipient, recipientID, event)

	n.mu.Lock()
	defer n.mu.Unlock()
	err = n.ch.PublishWithContext(ctx, exchangeName, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("notifier: publish %s: %w", key, err)
	}
	return nil
}

func (n *AMQPNotifier) Close() {
	if n.ch != nil {
		n.ch.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
