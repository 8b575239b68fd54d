// Package sessions owns per-conversation history. Conversations are keyed by
// "platform:channel-id", never shared across keys, and held in memory only —
// restart starts clean by design.
package sessions

import (
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/sentinel/internal/providers"
)

// DefaultMaxHistory bounds conversation length in turns.
const DefaultMaxHistory = 40

// Manager stores conversation histories. The supervisor is the only mutator;
// the mutex guards against auxiliary readers.
type Manager struct {
	mu         sync.Mutex
	histories  map[string][]providers.Message
	maxHistory int
}

// NewManager creates a history store bounded to maxHistory turns per
// conversation (DefaultMaxHistory when zero).
func NewManager(maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{
		histories:  make(map[string][]providers.Message),
		maxHistory: maxHistory,
	}
}

// Key builds the conversation key for a platform and channel.
func Key(platform, channelID string) string {
	return fmt.Sprintf("%s:%s", platform, channelID)
}

// History returns the stored turns for a conversation (a copy).
func (m *Manager) History(key string) []providers.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.histories[key]
	out := make([]providers.Message, len(history))
	copy(out, history)
	return out
}

// Replace stores the full turn sequence for a conversation and trims it to
// the bound, dropping oldest turns in insertion order.
func (m *Manager) Replace(key string, history []providers.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(history) > m.maxHistory {
		history = history[len(history)-m.maxHistory:]
	}
	m.histories[key] = history
}

// Append adds one turn and trims to the bound.
func (m *Manager) Append(key string, msg providers.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := append(m.histories[key], msg)
	if len(history) > m.maxHistory {
		history = history[len(history)-m.maxHistory:]
	}
	m.histories[key] = history
}

// Clear deletes a conversation entirely; the next message starts fresh.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.histories, key)
}

// Len reports the number of stored turns for a conversation.
func (m *Manager) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.histories[key])
}
