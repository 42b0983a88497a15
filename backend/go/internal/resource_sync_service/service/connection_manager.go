package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// wsClient pairs a connection with its write lock; gorilla connections allow one concurrent writer.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// ConnectionManager manages one WebSocket connection per user.
type ConnectionManager struct {
	clients map[string]*wsClient
	mu      sync.RWMutex
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*wsClient),
	}
}

// Add registers a connection for a user, closing any previous one.
func (m *ConnectionManager) Add(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	old := m.clients[userID]
	m.clients[userID] = &wsClient{conn: conn}
	m.mu.Unlock()

	if old != nil {
		_ = old.conn.Close()
	}
}

// Remove drops the user's connection if it is still conn. A newer connection
// registered by a reconnect is left alone.
func (m *ConnectionManager) Remove(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	c, ok := m.clients[userID]
	if ok && c.conn == conn {
		delete(m.clients, userID)
	}
	m.mu.Unlock()

	_ = conn.Close()
}

// Count returns the number of connected users.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// SendJSON writes v to the user's connection. It reports false if the user is not
// connected or the write failed.
func (m *ConnectionManager) SendJSON(userID string, v interface{}) bool {
	m.mu.RLock()
	c, ok := m.clients[userID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data) == nil
}
