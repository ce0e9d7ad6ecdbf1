package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Xhuk/continuitybridge/internal/tracing"
)

// BrokerPublishType is the node type id this executor serves.
const BrokerPublishType = "broker-publish"

// BrokerPublisher publishes a node's input to an AMQP exchange.
//
// Required config: routing_key. Optional: exchange (default ""), url
// (falls back to the executor's default endpoint).
type BrokerPublisher struct {
	pool       *ConnPool
	defaultURL string
}

// NewBrokerPublisher creates the executor over a shared connection pool.
func NewBrokerPublisher(pool *ConnPool, defaultURL string) *BrokerPublisher {
	return &BrokerPublisher{pool: pool, defaultURL: defaultURL}
}

func (b *BrokerPublisher) Execute(ctx context.Context, node *Node, input map[string]any, execCtx *Context) *Result {
	routingKey, ok := stringConfig(node, "routing_key")
	if !ok {
		return ConfigError(node, "routing_key")
	}
	exchange := optionalString(node, "exchange", "")
	url := optionalString(node, "url", b.defaultURL)
	if url == "" {
		return ConfigError(node, "url")
	}

	if execCtx != nil && execCtx.EmulationMode {
		return emulatedResult(map[string]any{
			"message_id":  fmt.Sprintf("emulated-%s", node.ID),
			"exchange":    exchange,
			"routing_key": routingKey,
		})
	}

	messageID := uuid.NewString()

	ctx, span := tracing.StartSpan(ctx, "node.broker_publish",
		attribute.String("node_id", node.ID),
		attribute.String("routing_key", routingKey),
	)
	defer span.End()

	body, err := json.Marshal(input)
	if err != nil {
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: marshal input: %v", node.ID, err),
			ErrKind: ErrKindExecution,
		}
	}

	conn, err := b.pool.Get(ctx, url)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: %v", node.ID, err),
			ErrKind: ErrKindConnection,
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: open channel: %v", node.ID, err),
			ErrKind: ErrKindConnection,
		}
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   messageID,
		Body:        body,
	})
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return &Result{
			Success: false,
			Err:     fmt.Sprintf("node %s: publish: %v", node.ID, err),
			ErrKind: ErrKindExecution,
		}
	}

	return &Result{
		Success: true,
		Output: map[string]any{
			"message_id":  messageID,
			"exchange":    exchange,
			"routing_key": routingKey,
			"bytes":       len(body),
		},
	}
}
