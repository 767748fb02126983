package classify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"API-BEANSORT/internal/models"
)

// FakeGateway simula el clasificador en proceso: responde con latencia
// configurable. Se usa en tests y en modo "fake" para correr la máquina sin
// el servicio real.
type FakeGateway struct {
	results chan<- models.ClassificationResult

	mu      sync.Mutex
	latency time.Duration
	// Decide decide el label por frame; nil ⇒ todo GOOD
	Decide  func(frameRef uuid.UUID) (models.Classification, float64)
	timers  map[uuid.UUID]*time.Timer
	stopped bool
}

func NewFakeGateway(latency time.Duration, results chan<- models.ClassificationResult) *FakeGateway {
	return &FakeGateway{
		results: results,
		latency: latency,
		timers:  make(map[uuid.UUID]*time.Timer),
	}
}

// SetLatency cambia la latencia simulada (solo para tests)
func (f *FakeGateway) SetLatency(latency time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = latency
}

// Classify responde tras la latencia simulada, o UNKNOWN si la latencia
// excede el budget (igual que el gateway real al vencer el timer)
func (f *FakeGateway) Classify(frameRef uuid.UUID, budget time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}

	latency := f.latency
	if latency > budget {
		// El clasificador no llegaría: degradar a UNKNOWN al vencer el budget
		f.timers[frameRef] = time.AfterFunc(budget, func() {
			f.deliver(models.ClassificationResult{
				FrameRef:   frameRef,
				Label:      models.ClassUnknown,
				ReceivedAt: time.Now(),
			})
		})
		return
	}

	f.timers[frameRef] = time.AfterFunc(latency, func() {
		label := models.ClassGood
		confidence := 0.99
		if f.Decide != nil {
			label, confidence = f.Decide(frameRef)
		}
		f.deliver(models.ClassificationResult{
			FrameRef:   frameRef,
			Label:      label,
			Confidence: confidence,
			ReceivedAt: time.Now(),
		})
	})
}

func (f *FakeGateway) deliver(result models.ClassificationResult) {
	f.mu.Lock()
	delete(f.timers, result.FrameRef)
	stopped := f.stopped
	f.mu.Unlock()

	if stopped {
		return
	}

	select {
	case f.results <- result:
	default:
	}
}

// Stop cancela todos los timers pendientes
func (f *FakeGateway) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	for frameRef, timer := range f.timers {
		timer.Stop()
		delete(f.timers, frameRef)
	}
	return nil
}
