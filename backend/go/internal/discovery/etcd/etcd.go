package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Cirkle/backend/go/internal/config"
	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix is the root under which service instances register.
const KeyPrefix = "/cirkle/services/"

// ServiceDiscovery registers and looks up service instances in etcd.
type ServiceDiscovery struct {
	cli    *clientv3.Client
	logger *logger.Logger
}

// NewServiceDiscovery creates a new ServiceDiscovery.
func NewServiceDiscovery(cfg config.EtcdConfig, log *logger.Logger) (*ServiceDiscovery, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("no etcd endpoints configured")
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ServiceDiscovery{cli: cli, logger: log}, nil
}

func servicePrefix(serviceName string) string {
	return KeyPrefix + serviceName + "/"
}

func instanceKey(serviceName, addr string) string {
	return servicePrefix(serviceName) + addr
}

// Register puts addr under the service's prefix with a lease kept alive until
// the returned stop function is called or ctx is cancelled.
func (s *ServiceDiscovery) Register(ctx context.Context, serviceName, addr string, ttl int64) (stop func(), err error) {
	lease, err := s.cli.Grant(ctx, ttl)
	if err != nil {
		return nil, err
	}
	key := instanceKey(serviceName, addr)
	if _, err := s.cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return nil, err
	}

	keepCtx, cancel := context.WithCancel(ctx)
	keepAlive, err := s.cli.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range keepAlive {
		}
		if keepCtx.Err() == nil {
			s.logger.WithField("key", key).Warn("etcd lease keep-alive ended unexpectedly")
		}
	}()

	return func() {
		cancel()
		<-done
		revokeCtx, revokeCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer revokeCancel()
		if _, err := s.cli.Revoke(revokeCtx, lease.ID); err != nil {
			s.logger.WithError(models.NewErrorInfo(err, "etcd_error")).WithField("key", key).Warn("Failed to revoke etcd lease")
		}
	}, nil
}

// Discover returns the addresses registered for a service.
func (s *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]string, error) {
	resp, err := s.cli.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		addr := strings.TrimSpace(string(kv.Value))
		if addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// Close closes the etcd client.
func (s *ServiceDiscovery) Close() error {
	return s.cli.Close()
}
