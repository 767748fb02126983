// Package tracker es el dueño del estado mutable compartido del pipeline:
// el mapa de items en vuelo entre detección y actuación/expiración, detrás
// de una interfaz angosta y thread-safe (create / on-classification / reap).
package tracker

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/models"
	"API-BEANSORT/internal/monitoring"
	"API-BEANSORT/internal/timing"
)

// DeadlineQueue es la vista del tracker hacia el Ejector Scheduler: la cola
// ordenada por deadline es la única fuente de verdad de "qué sigue", no el
// orden de llegada de las clasificaciones.
type DeadlineQueue interface {
	// Register encola un item recién creado
	Register(id uint64, deadline time.Time, lane int)
	// Wake despierta el loop de decisión (llegó una clasificación)
	Wake()
}

// Tracker mantiene el conjunto de items en vuelo. Los items terminales se
// archivan (evento) y se eliminan del mapa: la cardinalidad queda acotada
// por throughput máximo × latencia máxima posible.
type Tracker struct {
	mu       sync.RWMutex
	items    map[uint64]*models.TrackedItem
	byFrame  map[uuid.UUID]uint64
	nextID   atomic.Uint64
	profiles map[int]timing.LaneProfile
	queue    DeadlineQueue
	counters *monitoring.PipelineCounters
	events   chan<- models.ItemEvent
	channels map[int]int // lane → channel_id, para el evento terminal

	// passPolicy se invoca con los items que salen por el flujo de
	// aceptación (expirados o suprimidos). nil = no-op: siguen en la correa.
	passPolicy func(models.ItemEvent)
}

// New construye el tracker validando los perfiles de lane al arranque
func New(lanes []config.Lane, counters *monitoring.PipelineCounters, events chan<- models.ItemEvent) (*Tracker, error) {
	profiles := make(map[int]timing.LaneProfile, len(lanes))
	channels := make(map[int]int, len(lanes))

	for _, lane := range lanes {
		p := timing.LaneProfile{
			Lane:                    lane.ID,
			SpeedMPS:                lane.SpeedMPS,
			SensorToEjectorDistance: lane.SensorToEjectorM,
			ItemWidthMargin:         lane.ItemWidthMarginM,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		profiles[lane.ID] = p
		channels[lane.ID] = lane.Channel
	}

	return &Tracker{
		items:    make(map[uint64]*models.TrackedItem),
		byFrame:  make(map[uuid.UUID]uint64),
		profiles: profiles,
		channels: channels,
		counters: counters,
		events:   events,
	}, nil
}

// SetQueue conecta el scheduler (se llama una vez durante el wiring)
func (t *Tracker) SetQueue(q DeadlineQueue) {
	t.queue = q
}

// SetPassPolicy registra el callback que recibe los items que salen por
// el flujo de aceptación (expirados o suprimidos). nil = no-op.
func (t *Tracker) SetPassPolicy(policy func(models.ItemEvent)) {
	t.passPolicy = policy
}

// Create registra un item detectado: calcula su deadline (una sola vez,
// inmutable) y lo encola en el scheduler. Retorna una copia del item.
func (t *Tracker) Create(detectedAt time.Time, frameRef uuid.UUID, lane int) (models.TrackedItem, error) {
	profile, ok := t.profiles[lane]
	if !ok {
		return models.TrackedItem{}, fmt.Errorf("lane %d sin perfil configurado", lane)
	}

	deadline, err := timing.ComputeDeadline(detectedAt, profile)
	if err != nil {
		return models.TrackedItem{}, err
	}

	item := &models.TrackedItem{
		ID:             t.nextID.Add(1),
		Lane:           lane,
		FrameRef:       frameRef,
		DetectedAt:     detectedAt,
		Deadline:       deadline,
		Classification: models.ClassPending,
		Status:         models.StatusTracked,
	}

	t.mu.Lock()
	t.items[item.ID] = item
	t.byFrame[frameRef] = item.ID
	t.mu.Unlock()

	t.counters.RecordDetection(lane)
	t.queue.Register(item.ID, deadline, lane)

	return *item, nil
}

// OnClassification aplica un resultado del clasificador al item del frame.
// Los resultados pueden llegar fuera de orden respecto de la detección; la
// decisión de disparo se aplica por item, independiente del orden de llegada.
// Un resultado tardío para un item ya terminal se descarta y, si era BAD,
// se cuenta como missed-sort: nunca se actúa sobre un item expirado.
func (t *Tracker) OnClassification(result models.ClassificationResult) {
	t.mu.Lock()

	id, ok := t.byFrame[result.FrameRef]
	if !ok {
		t.mu.Unlock()
		if result.Label == models.ClassBad {
			t.counters.MissedSorts.Add(1)
			log.Printf("⚠️  [Tracker] BAD tardío para frame %s (item ya terminal): missed-sort", result.FrameRef)
		}
		return
	}

	item := t.items[id]
	if item.Status.Terminal() {
		// No debería pasar (byFrame se limpia al terminar), pero el estado
		// terminal es inmutable pase lo que pase
		t.mu.Unlock()
		return
	}

	item.Classification = result.Label
	item.Confidence = result.Confidence
	if item.Status == models.StatusTracked {
		item.Status = models.StatusClassified
	}
	t.mu.Unlock()

	if result.Label == models.ClassUnknown {
		t.counters.ClassifierTimeouts.Add(1)
	}

	// Una clasificación puede habilitar una decisión pendiente
	t.queue.Wake()
}

// Get retorna una copia del item, si sigue en vuelo
func (t *Tracker) Get(id uint64) (models.TrackedItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.items[id]
	if !ok {
		return models.TrackedItem{}, false
	}
	return *item, true
}

// MarkScheduled marca el item dentro de la ventana de decisión
func (t *Tracker) MarkScheduled(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[id]
	if !ok || item.Status.Terminal() {
		return false
	}
	item.Status = models.StatusScheduled
	return true
}

// MarkActuated fija atómicamente el estado ACTUATED antes de pedir el pulso
// físico: un dispatch duplicado desde un tick reintentado encuentra el item
// terminal y no dispara dos veces. Retorna false si el item ya era terminal.
func (t *Tracker) MarkActuated(id uint64, channelID int, firedAt time.Time) bool {
	t.mu.Lock()

	item, ok := t.items[id]
	if !ok || item.Status.Terminal() {
		t.mu.Unlock()
		return false
	}

	item.Status = models.StatusActuated
	item.FiredAt = firedAt
	copia := *item
	t.removeLocked(item)
	t.mu.Unlock()

	t.counters.Actuated.Add(1)
	t.emitEvent(copia, channelID)
	return true
}

// MarkSuppressed marca el item suprimido con su razón (contada, nunca un
// drop silencioso). Retorna false si el item ya era terminal.
func (t *Tracker) MarkSuppressed(id uint64, channelID int, reason models.SuppressReason) bool {
	t.mu.Lock()

	item, ok := t.items[id]
	if !ok || item.Status.Terminal() {
		t.mu.Unlock()
		return false
	}

	item.Status = models.StatusSuppressed
	item.Reason = reason
	copia := *item
	t.removeLocked(item)
	t.mu.Unlock()

	t.counters.CountSuppressed(reason)
	t.emitEvent(copia, channelID)
	return true
}

// MarkExpired expira un item cuyo deadline pasó sin decisión actuada.
// El fail-safe es dejar pasar el item sin clasificar antes que arriesgar un
// disparo fuera de tiempo o duplicado.
func (t *Tracker) MarkExpired(id uint64) bool {
	t.mu.Lock()

	item, ok := t.items[id]
	if !ok || item.Status.Terminal() {
		t.mu.Unlock()
		return false
	}

	item.Status = models.StatusExpired
	copia := *item
	t.removeLocked(item)
	t.mu.Unlock()

	t.counters.Expired.Add(1)
	t.emitEvent(copia, 0)
	return true
}

// ReapExpired barre los items vencidos que el scheduler no alcanzó a tocar.
// Corre en un ticker propio para que el conjunto de items no crezca sin
// límite bajo throughput sostenido.
func (t *Tracker) ReapExpired(now time.Time) int {
	t.mu.RLock()
	var vencidos []uint64
	for id, item := range t.items {
		if !item.Status.Terminal() && item.Deadline.Before(now) {
			vencidos = append(vencidos, id)
		}
	}
	t.mu.RUnlock()

	count := 0
	for _, id := range vencidos {
		if t.MarkExpired(id) {
			count++
		}
	}

	if count > 0 {
		log.Printf("⏰ [Tracker] %d item(s) expirados en el barrido", count)
	}
	return count
}

// InFlight retorna copias de todos los items en vuelo (API de estado)
func (t *Tracker) InFlight() []models.TrackedItem {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]models.TrackedItem, 0, len(t.items))
	for _, item := range t.items {
		result = append(result, *item)
	}
	return result
}

// Count retorna la cantidad de items en vuelo
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// removeLocked archiva el item terminal: fuera del mapa y del índice por frame
func (t *Tracker) removeLocked(item *models.TrackedItem) {
	delete(t.items, item.ID)
	delete(t.byFrame, item.FrameRef)
}

// emitEvent publica el evento terminal sin bloquear el pipeline
func (t *Tracker) emitEvent(item models.TrackedItem, channelID int) {
	event := models.ItemEvent{
		ItemID:         item.ID,
		Lane:           item.Lane,
		ChannelID:      channelID,
		FrameRef:       item.FrameRef,
		Classification: item.Classification,
		Confidence:     item.Confidence,
		Status:         item.Status,
		Reason:         item.Reason,
		DetectedAt:     item.DetectedAt,
		Deadline:       item.Deadline,
		FiredAt:        item.FiredAt,
	}

	if t.passPolicy != nil &&
		(item.Status == models.StatusExpired || item.Status == models.StatusSuppressed) {
		t.passPolicy(event)
	}

	if t.events == nil {
		return
	}

	select {
	case t.events <- event:
	default:
		log.Printf("⚠️  [Tracker] Canal de eventos lleno, evento del item %d descartado", item.ID)
	}
}
