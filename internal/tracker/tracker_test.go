package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/models"
	"API-BEANSORT/internal/monitoring"
)

// colaFake registra los Register/Wake para verificar el wiring con el scheduler
type colaFake struct {
	mu        sync.Mutex
	registros []uint64
	wakes     int
}

func (c *colaFake) Register(id uint64, deadline time.Time, lane int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registros = append(c.registros, id)
}

func (c *colaFake) Wake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wakes++
}

func trackerDePrueba(t *testing.T) (*Tracker, *colaFake, *monitoring.PipelineCounters, chan models.ItemEvent) {
	t.Helper()

	counters := monitoring.NewPipelineCounters()
	events := make(chan models.ItemEvent, 64)
	tr, err := New([]config.Lane{
		{ID: 1, SpeedMPS: 1.0, SensorToEjectorM: 0.5, ItemWidthMarginM: 0, Channel: 1},
	}, counters, events)
	require.NoError(t, err)

	cola := &colaFake{}
	tr.SetQueue(cola)
	return tr, cola, counters, events
}

func TestCreateCalculaDeadlineInmutable(t *testing.T) {
	tr, cola, counters, _ := trackerDePrueba(t)

	t0 := time.Now()
	item, err := tr.Create(t0, uuid.New(), 1)
	require.NoError(t, err)

	// 1.0 m/s × 0.5 m ⇒ deadline t0+0.5s
	assert.Equal(t, t0.Add(500*time.Millisecond), item.Deadline)
	assert.Equal(t, models.StatusTracked, item.Status)
	assert.Equal(t, models.ClassPending, item.Classification)
	assert.Equal(t, []uint64{item.ID}, cola.registros)
	assert.Equal(t, uint64(1), counters.Detected.Load())
}

func TestCreateLaneDesconocida(t *testing.T) {
	tr, _, _, _ := trackerDePrueba(t)

	_, err := tr.Create(time.Now(), uuid.New(), 99)
	assert.Error(t, err)
}

func TestIDsMonotonicos(t *testing.T) {
	tr, _, _, _ := trackerDePrueba(t)

	var anterior uint64
	for i := 0; i < 10; i++ {
		item, err := tr.Create(time.Now(), uuid.New(), 1)
		require.NoError(t, err)
		assert.Greater(t, item.ID, anterior)
		anterior = item.ID
	}
}

func TestOnClassificationTransiciona(t *testing.T) {
	tr, cola, _, _ := trackerDePrueba(t)

	frame := uuid.New()
	item, err := tr.Create(time.Now(), frame, 1)
	require.NoError(t, err)

	tr.OnClassification(models.ClassificationResult{FrameRef: frame, Label: models.ClassBad, Confidence: 0.95})

	actual, ok := tr.Get(item.ID)
	require.True(t, ok)
	assert.Equal(t, models.ClassBad, actual.Classification)
	assert.Equal(t, models.StatusClassified, actual.Status)
	assert.InDelta(t, 0.95, actual.Confidence, 1e-9)
	assert.Equal(t, 1, cola.wakes)
}

func TestUnknownCuentaTimeout(t *testing.T) {
	tr, _, counters, _ := trackerDePrueba(t)

	frame := uuid.New()
	_, err := tr.Create(time.Now(), frame, 1)
	require.NoError(t, err)

	tr.OnClassification(models.ClassificationResult{FrameRef: frame, Label: models.ClassUnknown})
	assert.Equal(t, uint64(1), counters.ClassifierTimeouts.Load())
}

func TestBadTardioEsMissedSort(t *testing.T) {
	tr, _, counters, _ := trackerDePrueba(t)

	frame := uuid.New()
	item, err := tr.Create(time.Now(), frame, 1)
	require.NoError(t, err)

	// El item expira antes de que llegue el resultado
	require.True(t, tr.MarkExpired(item.ID))

	tr.OnClassification(models.ClassificationResult{FrameRef: frame, Label: models.ClassBad, Confidence: 0.9})

	// El resultado tardío se descarta: no muta estado terminal, no dispara,
	// solo incrementa el contador de missed-sorts
	assert.Equal(t, uint64(1), counters.MissedSorts.Load())
	_, ok := tr.Get(item.ID)
	assert.False(t, ok)
}

func TestEstadoTerminalEsInmutable(t *testing.T) {
	tr, _, counters, _ := trackerDePrueba(t)

	item, err := tr.Create(time.Now(), uuid.New(), 1)
	require.NoError(t, err)

	require.True(t, tr.MarkActuated(item.ID, 1, time.Now()))

	// Un segundo intento de cualquier transición terminal es rechazado
	assert.False(t, tr.MarkActuated(item.ID, 1, time.Now()))
	assert.False(t, tr.MarkExpired(item.ID))
	assert.False(t, tr.MarkSuppressed(item.ID, 1, models.ReasonChannelBusy))
	assert.Equal(t, uint64(1), counters.Actuated.Load())
}

func TestReapExpired(t *testing.T) {
	tr, _, counters, events := trackerDePrueba(t)

	t0 := time.Now().Add(-2 * time.Second) // detección vieja: deadline ya pasó
	_, err := tr.Create(t0, uuid.New(), 1)
	require.NoError(t, err)
	vivo, err := tr.Create(time.Now(), uuid.New(), 1)
	require.NoError(t, err)

	barridos := tr.ReapExpired(time.Now())
	assert.Equal(t, 1, barridos)
	assert.Equal(t, uint64(1), counters.Expired.Load())

	// El item con deadline futuro sigue en vuelo
	_, ok := tr.Get(vivo.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, tr.Count())

	// El evento terminal se publica para el archivo
	select {
	case ev := <-events:
		assert.Equal(t, models.StatusExpired, ev.Status)
	default:
		t.Fatal("no se publicó el evento de expiración")
	}
}

func TestPassPolicyRecibeExpiradosYSuprimidos(t *testing.T) {
	tr, _, _, _ := trackerDePrueba(t)

	var pasados []models.ItemEvent
	tr.SetPassPolicy(func(ev models.ItemEvent) {
		pasados = append(pasados, ev)
	})

	expirado, err := tr.Create(time.Now(), uuid.New(), 1)
	require.NoError(t, err)
	suprimido, err := tr.Create(time.Now(), uuid.New(), 1)
	require.NoError(t, err)
	eyectado, err := tr.Create(time.Now(), uuid.New(), 1)
	require.NoError(t, err)

	require.True(t, tr.MarkExpired(expirado.ID))
	require.True(t, tr.MarkSuppressed(suprimido.ID, 1, models.ReasonFailSafePass))
	require.True(t, tr.MarkActuated(eyectado.ID, 1, time.Now()))

	// Solo los items que siguen en la correa pasan por la política;
	// el eyectado ya no está en el flujo de aceptación
	require.Len(t, pasados, 2)
	assert.Equal(t, expirado.ID, pasados[0].ItemID)
	assert.Equal(t, models.StatusExpired, pasados[0].Status)
	assert.Equal(t, suprimido.ID, pasados[1].ItemID)
	assert.Equal(t, models.ReasonFailSafePass, pasados[1].Reason)
}

func TestEventoTerminalDeActuacion(t *testing.T) {
	tr, _, _, events := trackerDePrueba(t)

	frame := uuid.New()
	item, err := tr.Create(time.Now(), frame, 1)
	require.NoError(t, err)

	tr.OnClassification(models.ClassificationResult{FrameRef: frame, Label: models.ClassBad, Confidence: 0.9})
	firedAt := time.Now()
	require.True(t, tr.MarkActuated(item.ID, 7, firedAt))

	select {
	case ev := <-events:
		assert.Equal(t, item.ID, ev.ItemID)
		assert.Equal(t, 7, ev.ChannelID)
		assert.Equal(t, models.StatusActuated, ev.Status)
		assert.Equal(t, models.ClassBad, ev.Classification)
		assert.Equal(t, "item_ejected", ev.Type())
	default:
		t.Fatal("no se publicó el evento de actuación")
	}
}
