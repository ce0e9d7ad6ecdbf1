package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/singleflight"

	"github.com/Xhuk/continuitybridge/internal/logging"
)

// DefaultDialTimeout bounds broker connection establishment.
const DefaultDialTimeout = 10 * time.Second

// ConnPool caches one live AMQP connection per distinct endpoint URL.
// Liveness is verified before reuse; creation for a not-yet-cached endpoint
// is single-flighted so concurrent first use cannot double-connect.
// Connection objects are safe for concurrent use by the amqp client.
type ConnPool struct {
	dialTimeout time.Duration
	logger      *logging.Logger

	mu    sync.Mutex
	conns map[string]*amqp.Connection
	sf    singleflight.Group
}

// NewConnPool creates an empty pool.
func NewConnPool(dialTimeout time.Duration, logger *logging.Logger) *ConnPool {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	if logger == nil {
		logger = logging.New("amqp-pool")
	}
	return &ConnPool{
		dialTimeout: dialTimeout,
		logger:      logger,
		conns:       make(map[string]*amqp.Connection),
	}
}

// Get returns a live connection for the endpoint, dialing one if the cached
// connection is missing or has died.
func (p *ConnPool) Get(ctx context.Context, url string) (*amqp.Connection, error) {
	p.mu.Lock()
	if conn, ok := p.conns[url]; ok && !conn.IsClosed() {
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	v, err, _ := p.sf.Do(url, func() (any, error) {
		// Another flight may have connected while we waited.
		p.mu.Lock()
		if conn, ok := p.conns[url]; ok && !conn.IsClosed() {
			p.mu.Unlock()
			return conn, nil
		}
		p.mu.Unlock()

		conn, err := amqp.DialConfig(url, amqp.Config{
			Dial: amqp.DefaultDial(p.dialTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("dial broker %s: %w", url, err)
		}

		p.mu.Lock()
		p.conns[url] = conn
		p.mu.Unlock()

		p.logger.WithContext(ctx).WithField("endpoint", url).Info("broker connection established")
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*amqp.Connection), nil
}

// DisconnectAll closes every cached connection, for clean process shutdown.
func (p *ConnPool) DisconnectAll() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*amqp.Connection)
	p.mu.Unlock()

	var firstErr error
	for url, conn := range conns {
		if conn.IsClosed() {
			continue
		}
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close broker connection %s: %w", url, err)
		}
	}
	return firstErr
}
