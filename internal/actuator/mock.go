package actuator

import (
	"context"
	"sync"
	"time"
)

// MockFire registra un pulso pedido al backend mock
type MockFire struct {
	ChannelID int
	At        time.Time
	Pulse     time.Duration
}

// MockBackend registra los pulsos en memoria. Se usa en tests y como backend
// por defecto cuando la máquina corre sin hardware conectado (dry-run).
type MockBackend struct {
	mu    sync.Mutex
	fires []MockFire

	// FailFor simula fallas de hardware para los canales indicados
	FailFor map[int]error
}

func NewMockBackend() *MockBackend {
	return &MockBackend{FailFor: make(map[int]error)}
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Pulse(_ context.Context, ch *Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailFor[ch.ID]; ok && err != nil {
		return err
	}

	m.fires = append(m.fires, MockFire{
		ChannelID: ch.ID,
		At:        ch.LastFiredAt(),
		Pulse:     ch.PulseDuration,
	})
	return nil
}

// Fires retorna una copia de los pulsos registrados
func (m *MockBackend) Fires() []MockFire {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockFire, len(m.fires))
	copy(out, m.fires)
	return out
}
