package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"API-BEANSORT/internal/actuator"
	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/models"
)

// almacenFake implementa ItemStore en memoria con la misma semántica CAS del
// tracker real: los items terminales salen del mapa y Get deja de verlos
type almacenFake struct {
	mu        sync.Mutex
	items     map[uint64]models.TrackedItem
	terminal  map[uint64]models.TrackedItem
	supresion map[uint64]models.SuppressReason
}

func nuevoAlmacenFake() *almacenFake {
	return &almacenFake{
		items:     make(map[uint64]models.TrackedItem),
		terminal:  make(map[uint64]models.TrackedItem),
		supresion: make(map[uint64]models.SuppressReason),
	}
}

func (a *almacenFake) agregar(item models.TrackedItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[item.ID] = item
}

func (a *almacenFake) Get(id uint64) (models.TrackedItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[id]
	return item, ok
}

func (a *almacenFake) MarkScheduled(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[id]
	if !ok {
		return false
	}
	item.Status = models.StatusScheduled
	a.items[id] = item
	return true
}

func (a *almacenFake) MarkActuated(id uint64, channelID int, firedAt time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[id]
	if !ok {
		return false
	}
	item.Status = models.StatusActuated
	item.FiredAt = firedAt
	delete(a.items, id)
	a.terminal[id] = item
	return true
}

func (a *almacenFake) MarkSuppressed(id uint64, channelID int, reason models.SuppressReason) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[id]
	if !ok {
		return false
	}
	item.Status = models.StatusSuppressed
	item.Reason = reason
	delete(a.items, id)
	a.terminal[id] = item
	a.supresion[id] = reason
	return true
}

func (a *almacenFake) MarkExpired(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[id]
	if !ok {
		return false
	}
	item.Status = models.StatusExpired
	delete(a.items, id)
	a.terminal[id] = item
	return true
}

func (a *almacenFake) estadoTerminal(id uint64) (models.TrackedItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.terminal[id]
	return item, ok
}

// ejecutorSync registra los comandos despachados sin thread propio
type ejecutorSync struct {
	mu       sync.Mutex
	comandos []FireCommand
}

func (e *ejecutorSync) Dispatch(cmd FireCommand) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.comandos = append(e.comandos, cmd)
}

func (e *ejecutorSync) despachados() []FireCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]FireCommand(nil), e.comandos...)
}

func bancoDePrueba(t *testing.T) *actuator.Bank {
	t.Helper()
	bank, err := actuator.NewBank([]config.EjectorChannel{
		{ID: 1, Lane: 1, PulseDuration: "25ms", MinRefireInterval: "100ms", CalibrationOffset: "0ms"},
	}, actuator.NewMockBackend(), 2*time.Millisecond)
	require.NoError(t, err)
	return bank
}

func itemDePrueba(id uint64, deadline time.Time, class models.Classification) models.TrackedItem {
	return models.TrackedItem{
		ID:             id,
		Lane:           1,
		Deadline:       deadline,
		Classification: class,
		Confidence:     0.9,
		Status:         models.StatusTracked,
	}
}

func TestBadClasificadoATiempoDisparaUnaVez(t *testing.T) {
	store := nuevoAlmacenFake()
	exec := &ejecutorSync{}
	sched := New(store, bancoDePrueba(t), exec, 30*time.Millisecond)

	t0 := time.Now()
	deadline := t0.Add(50 * time.Millisecond)
	store.agregar(itemDePrueba(1, deadline, models.ClassBad))
	sched.Register(1, deadline, 1)

	// Dentro de la ventana de decisión: due = deadline − 30ms
	sched.processDue(deadline.Add(-20 * time.Millisecond))

	comandos := exec.despachados()
	require.Len(t, comandos, 1)
	assert.Equal(t, uint64(1), comandos[0].ItemID)
	assert.Equal(t, 1, comandos[0].ChannelID)
	assert.True(t, comandos[0].At.Equal(deadline), "el pulso se programa en el deadline")

	terminal, ok := store.estadoTerminal(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusActuated, terminal.Status)

	// Un tick duplicado sobre el mismo item no vuelve a disparar
	sched.Register(1, deadline, 1)
	sched.processDue(deadline.Add(-10 * time.Millisecond))
	assert.Len(t, exec.despachados(), 1)
}

func TestGoodYUnknownPasanSinDisparo(t *testing.T) {
	store := nuevoAlmacenFake()
	exec := &ejecutorSync{}
	sched := New(store, bancoDePrueba(t), exec, 30*time.Millisecond)

	t0 := time.Now()
	deadline := t0.Add(50 * time.Millisecond)
	store.agregar(itemDePrueba(1, deadline, models.ClassGood))
	store.agregar(itemDePrueba(2, deadline.Add(5*time.Millisecond), models.ClassUnknown))
	sched.Register(1, deadline, 1)
	sched.Register(2, deadline.Add(5*time.Millisecond), 1)

	sched.processDue(deadline.Add(-10 * time.Millisecond))

	assert.Empty(t, exec.despachados(), "GOOD y UNKNOWN nunca disparan")
	assert.Equal(t, models.ReasonFailSafePass, store.supresion[1])
	assert.Equal(t, models.ReasonFailSafePass, store.supresion[2])
}

func TestTieBreakPorCooldownSuprimeElSegundo(t *testing.T) {
	store := nuevoAlmacenFake()
	exec := &ejecutorSync{}
	sched := New(store, bancoDePrueba(t), exec, 30*time.Millisecond)

	// Deadlines a 20ms entre sí con min_refire_interval de 100ms: solo el
	// más temprano puede reservar el canal
	t0 := time.Now()
	d1 := t0.Add(500 * time.Millisecond)
	d2 := t0.Add(520 * time.Millisecond)
	store.agregar(itemDePrueba(1, d1, models.ClassBad))
	store.agregar(itemDePrueba(2, d2, models.ClassBad))
	sched.Register(1, d1, 1)
	sched.Register(2, d2, 1)

	sched.processDue(t0.Add(495 * time.Millisecond))

	comandos := exec.despachados()
	require.Len(t, comandos, 1)
	assert.Equal(t, uint64(1), comandos[0].ItemID, "el deadline más temprano gana el canal")

	reason, ok := store.supresion[2]
	require.True(t, ok)
	assert.Equal(t, models.ReasonChannelBusy, reason)
}

func TestPendingReintentaEnDeadlineYExpira(t *testing.T) {
	store := nuevoAlmacenFake()
	exec := &ejecutorSync{}
	sched := New(store, bancoDePrueba(t), exec, 30*time.Millisecond)

	t0 := time.Now()
	deadline := t0.Add(50 * time.Millisecond)
	store.agregar(itemDePrueba(1, deadline, models.ClassPending))
	sched.Register(1, deadline, 1)

	// En la ventana de decisión sigue PENDING: se reencola para el deadline
	sched.processDue(deadline.Add(-20 * time.Millisecond))
	assert.Empty(t, exec.despachados())
	assert.Equal(t, 1, sched.Pending())
	_, terminal := store.estadoTerminal(1)
	assert.False(t, terminal, "PENDING dentro de la ventana todavía no es terminal")

	// En el deadline sin clasificación: expira sin disparar
	sched.processDue(deadline)
	item, ok := store.estadoTerminal(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusExpired, item.Status)
	assert.Empty(t, exec.despachados())
}

func TestBadTardioExpiraSinDisparar(t *testing.T) {
	store := nuevoAlmacenFake()
	exec := &ejecutorSync{}
	sched := New(store, bancoDePrueba(t), exec, 30*time.Millisecond)

	t0 := time.Now()
	deadline := t0.Add(50 * time.Millisecond)
	store.agregar(itemDePrueba(1, deadline, models.ClassBad))
	sched.Register(1, deadline, 1)

	// El loop recién procesa después del deadline: nunca se dispara tarde
	sched.processDue(deadline.Add(5 * time.Millisecond))

	assert.Empty(t, exec.despachados())
	item, ok := store.estadoTerminal(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusExpired, item.Status)
}

func TestCanalDegradadoSuprimeSinDisparar(t *testing.T) {
	store := nuevoAlmacenFake()
	exec := &ejecutorSync{}
	bank := bancoDePrueba(t)
	ch, ok := bank.Channel(1)
	require.True(t, ok)
	ch.SetDegraded(true)

	sched := New(store, bank, exec, 30*time.Millisecond)

	t0 := time.Now()
	deadline := t0.Add(50 * time.Millisecond)
	store.agregar(itemDePrueba(1, deadline, models.ClassBad))
	sched.Register(1, deadline, 1)

	sched.processDue(deadline.Add(-10 * time.Millisecond))

	assert.Empty(t, exec.despachados())
	assert.Equal(t, models.ReasonChannelDegraded, store.supresion[1])
}

func TestOrdenDeProcesamientoPorDeadline(t *testing.T) {
	store := nuevoAlmacenFake()
	exec := &ejecutorSync{}
	bank, err := actuator.NewBank([]config.EjectorChannel{
		{ID: 1, Lane: 1, PulseDuration: "25ms", MinRefireInterval: "1ms", CalibrationOffset: "0ms"},
	}, actuator.NewMockBackend(), 2*time.Millisecond)
	require.NoError(t, err)
	sched := New(store, bank, exec, 30*time.Millisecond)

	// Registro en orden inverso al deadline: la cola igual decide primero
	// el más cercano
	t0 := time.Now()
	deadlines := []time.Time{
		t0.Add(110 * time.Millisecond),
		t0.Add(105 * time.Millisecond),
		t0.Add(100 * time.Millisecond),
	}
	for i, d := range deadlines {
		id := uint64(i + 1)
		store.agregar(itemDePrueba(id, d, models.ClassBad))
		sched.Register(id, d, 1)
	}

	// Todos los dues vencidos, todos los deadlines todavía en el futuro
	sched.processDue(t0.Add(95 * time.Millisecond))

	comandos := exec.despachados()
	require.Len(t, comandos, 3)
	for i := 1; i < len(comandos); i++ {
		assert.True(t, comandos[i-1].At.Before(comandos[i].At),
			"los disparos salen en orden de deadline ascendente")
	}
}
