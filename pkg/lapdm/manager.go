package lapdm

import (
	"fmt"
	"sort"
	"sync"

	"avaneesh/lapdm-go/pkg/frame"
	"avaneesh/lapdm-go/pkg/internal/logger"
)

// Manager keeps the LAPDm channels of one process by name
type Manager struct {
	channels map[string]*Channel
	mu       sync.RWMutex
	logger   logger.Logger
}

// NewManager creates a new manager
func NewManager() *Manager {
	return NewManagerWithLogger(logger.GetDefault())
}

// NewManagerWithLogger creates a new manager with custom logger
func NewManagerWithLogger(log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Manager{
		channels: make(map[string]*Channel),
		logger:   log,
	}
}

// AddChannel creates and registers a channel
func (m *Manager) AddChannel(name string, mode frame.Role, config ChannelConfig) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrChannelExists, name)
	}

	if config.Logger == nil {
		config.Logger = m.logger
	}
	ch, err := NewChannel(name, mode, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel %s: %w", name, err)
	}

	m.channels[name] = ch
	m.logger.Info("Manager: Added channel %s (%s)", name, mode)
	return ch, nil
}

// RemoveChannel exits and removes a channel
func (m *Manager) RemoveChannel(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, exists := m.channels[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}

	ch.Exit()
	delete(m.channels, name)
	m.logger.Info("Manager: Removed channel %s", name)
	return nil
}

// GetChannel returns a channel by name
func (m *Manager) GetChannel(name string) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, exists := m.channels[name]
	return ch, exists
}

// Channels returns the registered channel names in order
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChannelCount returns the number of channels
func (m *Manager) ChannelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

// Shutdown exits and removes every channel
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Manager: Shutting down")
	for _, ch := range m.channels {
		ch.Exit()
	}
	m.channels = make(map[string]*Channel)
	m.logger.Info("Manager: Shutdown complete")
}

// SetLogger sets the logger for the manager
func (m *Manager) SetLogger(log logger.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = log
}
