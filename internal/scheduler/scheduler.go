// Package scheduler implementa el despachador central del sorter: una
// máquina de estados ordenada por deadline que decide, para cada item en
// vuelo, si un eyector dispara y cuándo. El loop de decisión nunca bloquea
// en I/O externo: solo duerme hasta el próximo due o despierta cuando llega
// una clasificación, lo que ocurra primero.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"API-BEANSORT/internal/actuator"
	"API-BEANSORT/internal/models"
)

// ItemStore es la vista del scheduler sobre el Item Tracker. Todas las
// transiciones terminales son compare-and-set: retornan false si el item ya
// era terminal, lo que hace idempotente cualquier tick duplicado.
type ItemStore interface {
	Get(id uint64) (models.TrackedItem, bool)
	MarkScheduled(id uint64) bool
	MarkActuated(id uint64, channelID int, firedAt time.Time) bool
	MarkSuppressed(id uint64, channelID int, reason models.SuppressReason) bool
	MarkExpired(id uint64) bool
}

// Executor es el sustrato de ejecución determinista: recibe el comando de
// disparo ya comprometido y garantiza el pulso con jitter acotado.
type Executor interface {
	Dispatch(cmd FireCommand)
}

// FireCommand es un disparo comprometido: el item ya está ACTUATED cuando el
// comando se despacha
type FireCommand struct {
	ItemID    uint64
	ChannelID int
	At        time.Time
}

// Scheduler mantiene la cola de deadlines y ejecuta la regla de decisión en
// cada tick
type Scheduler struct {
	store    ItemStore
	bank     *actuator.Bank
	exec     Executor
	leadTime time.Duration

	mu    sync.Mutex
	queue deadlineHeap
	wake  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New crea el scheduler. leadTime es el mínimo entre decisión y pulso físico.
func New(store ItemStore, bank *actuator.Bank, exec Executor, leadTime time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    store,
		bank:     bank,
		exec:     exec,
		leadTime: leadTime,
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register encola un item recién detectado. La decisión se toma en
// deadline − lead_time. Implementa tracker.DeadlineQueue.
func (s *Scheduler) Register(id uint64, deadline time.Time, lane int) {
	s.mu.Lock()
	heap.Push(&s.queue, &entry{
		id:       id,
		deadline: deadline,
		due:      deadline.Add(-s.leadTime),
		lane:     lane,
	})
	s.mu.Unlock()

	s.Wake()
}

// Wake despierta el loop de decisión (llegó una clasificación o un item
// nuevo). No bloquea nunca.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending retorna la cantidad de entries en cola (API de estado)
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Run ejecuta el loop de decisión hasta Stop. Debe correr en su propia
// goroutine.
func (s *Scheduler) Run() {
	log.Printf("⚙️  [Scheduler] Loop de decisión iniciado (lead time: %v)", s.leadTime)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.processDue(time.Now())

		// Dormir hasta el próximo due; el timer se reajusta en cada vuelta
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		s.mu.Lock()
		next := s.queue.peek()
		s.mu.Unlock()

		if next != nil {
			wait := time.Until(next.due)
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		} else {
			timer.Reset(time.Hour) // cola vacía: solo un Wake nos despierta
		}

		select {
		case <-s.ctx.Done():
			log.Println("🛑 [Scheduler] Loop de decisión detenido")
			return
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// Stop detiene el loop de decisión
func (s *Scheduler) Stop() {
	s.cancel()
}

// processDue procesa todos los entries con due vencido
func (s *Scheduler) processDue(now time.Time) {
	for {
		s.mu.Lock()
		next := s.queue.peek()
		if next == nil || next.due.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.queue).(*entry)
		s.mu.Unlock()

		s.decide(e, now)
	}
}

// decide aplica la regla de decisión a un entry vencido.
//
// BAD clasificado a tiempo ⇒ reservar el canal de la lane y comprometer el
// disparo. GOOD/UNKNOWN ⇒ fail-safe pass-through: dejar pasar sin disparar.
// PENDING dentro de la ventana de decisión ⇒ reintentar en el deadline, donde
// expira si la clasificación nunca llegó.
func (s *Scheduler) decide(e *entry, now time.Time) {
	item, ok := s.store.Get(e.id)
	if !ok {
		return // ya terminal (barrido del reaper u otro tick)
	}

	// Deadline alcanzado sin decisión actuada: el fail-safe es dejar pasar
	// el item antes que arriesgar un disparo fuera de tiempo
	if !now.Before(item.Deadline) {
		if s.store.MarkExpired(e.id) {
			log.Printf("⏰ [Scheduler] Item %d expirado (deadline %s, clasificación %s)",
				e.id, item.Deadline.Format("15:04:05.000"), item.Classification)
		}
		return
	}

	switch item.Classification {
	case models.ClassPending:
		// El budget del clasificador aún no venció del todo: reintentar en
		// el deadline. Si para entonces sigue PENDING, expira.
		s.mu.Lock()
		e.due = item.Deadline
		heap.Push(&s.queue, e)
		s.mu.Unlock()

	case models.ClassBad:
		s.commitFire(e, item)

	case models.ClassGood, models.ClassUnknown:
		channelID := 0
		if ch, ok := s.bank.ChannelForLane(e.lane); ok {
			channelID = ch.ID
		}
		s.store.MarkSuppressed(e.id, channelID, models.ReasonFailSafePass)
	}
}

// commitFire compromete el disparo de un item BAD: reserva el canal
// (tie-break por cooldown), fija ACTUATED atómicamente ANTES de pedir el
// pulso y recién entonces despacha el comando al ejecutor.
func (s *Scheduler) commitFire(e *entry, item models.TrackedItem) {
	ch, ok := s.bank.ChannelForLane(e.lane)
	if !ok {
		// No debería ocurrir: la configuración valida lane→canal al arranque
		log.Printf("🚨 [Scheduler] Lane %d sin canal de eyector, item %d suprimido", e.lane, e.id)
		s.store.MarkSuppressed(e.id, 0, models.ReasonChannelDegraded)
		return
	}

	at := item.Deadline.Add(ch.CalibrationOffset)

	if err := ch.TryReserve(at); err != nil {
		switch {
		case errors.Is(err, models.ErrChannelBusy):
			// Dos deadlines más cercanos que min_refire_interval: el más
			// temprano ya reservó. Anomalía reportable, nunca drop silencioso.
			log.Printf("⚠️  [Scheduler] Item %d pierde tie-break en canal %d: %v", e.id, ch.ID, err)
			s.store.MarkSuppressed(e.id, ch.ID, models.ReasonChannelBusy)
		case errors.Is(err, models.ErrChannelDegraded):
			log.Printf("⚠️  [Scheduler] Item %d sobre canal degradado %d, suprimido", e.id, ch.ID)
			s.store.MarkSuppressed(e.id, ch.ID, models.ReasonChannelDegraded)
		default:
			log.Printf("❌ [Scheduler] Reserva de canal %d falló para item %d: %v", ch.ID, e.id, err)
			s.store.MarkSuppressed(e.id, ch.ID, models.ReasonChannelDegraded)
		}
		return
	}

	s.store.MarkScheduled(e.id)

	// Exactly-once: ACTUATED se fija antes del pulso físico. Si otro tick ya
	// lo marcó, este dispatch se descarta acá.
	if !s.store.MarkActuated(e.id, ch.ID, at) {
		log.Printf("🚨 [Scheduler] Dispatch duplicado para item %d descartado", e.id)
		return
	}

	log.Printf("🔥 [Scheduler] Item %d comprometido: canal %d dispara a las %s (confianza %.2f)",
		e.id, ch.ID, at.Format("15:04:05.000"), item.Confidence)

	s.exec.Dispatch(FireCommand{ItemID: e.id, ChannelID: ch.ID, At: at})
}
