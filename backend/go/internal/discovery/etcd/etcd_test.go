package etcd

import (
	"testing"

	"Cirkle/backend/go/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "/cirkle/services/resource-sync/", servicePrefix("resource-sync"))
	assert.Equal(t, "/cirkle/services/resource-sync/10.0.0.5:8080", instanceKey("resource-sync", "10.0.0.5:8080"))
}

func TestNewServiceDiscovery_RequiresEndpoints(t *testing.T) {
	_, err := NewServiceDiscovery(config.EtcdConfig{}, nil)
	assert.Error(t, err)
}
