package transport

// Dialing a gRPC channel costs far more than the queries that flow over it,
// and callers tend to hit a small set of endpoints. The factory keeps ready
// connections in a small LRU keyed by (target, key); eviction closes the
// underlying connection. Only connections live here, never query results.

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Factory produces ready channels for reporting service endpoints, reusing
// the underlying connection per (target, key) pair.
type Factory struct {
	mu     sync.Mutex
	conns  *lru.Cache
	logger *logrus.Logger
}

// NewFactory creates a factory keeping at most size open connections.
func NewFactory(size int, logger *logrus.Logger) (*Factory, error) {
	conns, err := lru.NewWithEvict(size, func(key, value interface{}) {
		if conn, ok := value.(*grpc.ClientConn); ok {
			conn.Close()
		}
	})
	if err != nil {
		return nil, err
	}
	return &Factory{conns: conns, logger: logger}, nil
}

// Channel returns a ready channel for cfg, dialing on first use.
func (f *Factory) Channel(cfg Config) (*Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := cfg.ServerURL + "|" + cfg.APIKey
	if v, ok := f.conns.Get(key); ok {
		return NewChannel(v.(*grpc.ClientConn), cfg), nil
	}

	conn, err := dial(cfg, f.logger)
	if err != nil {
		return nil, err
	}
	f.conns.Add(key, conn)
	return NewChannel(conn, cfg), nil
}

// Close closes every pooled connection.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns.Purge()
}
