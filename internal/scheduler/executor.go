package scheduler

import (
	"context"
	"errors"
	"log"
	"runtime"
	"time"

	"API-BEANSORT/internal/actuator"
	"API-BEANSORT/internal/models"
	"API-BEANSORT/internal/monitoring"
)

// spinThreshold: por debajo de este resto el ejecutor deja el timer del
// runtime y espera activamente sobre el reloj monotónico, para acotar el
// jitter de arranque del pulso muy por debajo de la granularidad del sleep
const spinThreshold = 500 * time.Microsecond

// RealtimeExecutor es el sustrato de ejecución del Actuator Driver: una
// goroutine anclada a su propio thread del OS (LockOSThread) que consume
// comandos de disparo comprometidos, duerme hasta el at_time de cada uno y
// pide el pulso al banco. En un target de producción este thread corre con
// prioridad realtime y afinidad de core; acá se abstrae la garantía como
// "dispatch con latencia acotada" sin depender de un kernel parcheado.
type RealtimeExecutor struct {
	bank     *actuator.Bank
	counters *monitoring.PipelineCounters
	commands chan FireCommand
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewRealtimeExecutor crea el ejecutor con una cola de comandos acotada
func NewRealtimeExecutor(bank *actuator.Bank, counters *monitoring.PipelineCounters) *RealtimeExecutor {
	ctx, cancel := context.WithCancel(context.Background())
	return &RealtimeExecutor{
		bank:     bank,
		counters: counters,
		commands: make(chan FireCommand, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dispatch encola un comando de disparo ya comprometido. No bloquea: si la
// cola está llena algo anda muy mal y el evento se pierde contado como falla.
func (x *RealtimeExecutor) Dispatch(cmd FireCommand) {
	select {
	case x.commands <- cmd:
	default:
		x.counters.HardwareFaults.Add(1)
		log.Printf("🚨 [Executor] Cola de comandos llena, disparo del item %d PERDIDO", cmd.ItemID)
	}
}

// Run consume comandos hasta Stop. Debe correr en su propia goroutine.
func (x *RealtimeExecutor) Run() {
	// Thread dedicado: el scheduler del runtime no nos migra ni nos aparca
	// detrás de otra goroutine entre el sleep fino y el pulso
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log.Println("⏱️  [Executor] Thread de actuación iniciado (OS thread dedicado)")

	for {
		select {
		case <-x.ctx.Done():
			log.Println("🛑 [Executor] Thread de actuación detenido")
			return

		case cmd := <-x.commands:
			x.fire(cmd)
		}
	}
}

// Stop detiene el thread de actuación
func (x *RealtimeExecutor) Stop() {
	x.cancel()
}

// fire duerme hasta cmd.At y lanza el pulso. El pulso corre en su propia
// goroutine: un backend que tarda pulse_duration (o un roundtrip OPC UA) no
// retrasa el siguiente comando encolado sobre otro canal. Sobre un mismo
// canal los pulsos nunca se solapan porque min_refire_interval >=
// pulse_duration se valida al arranque.
func (x *RealtimeExecutor) fire(cmd FireCommand) {
	x.waitUntil(cmd.At)
	go x.pulse(cmd)
}

// pulse ejecuta el pulso comprometido y contabiliza el resultado
func (x *RealtimeExecutor) pulse(cmd FireCommand) {
	if err := x.bank.Fire(x.ctx, cmd.ChannelID, cmd.At); err != nil {
		switch {
		case errors.Is(err, models.ErrHardwareFault):
			x.counters.HardwareFaults.Add(1)
			log.Printf("❌ [Executor] Falla de hardware en canal %d (item %d): %v", cmd.ChannelID, cmd.ItemID, err)
		case errors.Is(err, models.ErrChannelBusy):
			// El scheduler debió prevenirlo: falla de consistencia interna,
			// fatal para este evento, nunca se reintenta
			log.Printf("🚨 [Executor] ChannelBusy en disparo comprometido (item %d, canal %d): %v",
				cmd.ItemID, cmd.ChannelID, err)
		default:
			log.Printf("❌ [Executor] Error disparando canal %d (item %d): %v", cmd.ChannelID, cmd.ItemID, err)
		}
	}
}

// waitUntil duerme hasta at: timer grueso primero, espera activa al final
func (x *RealtimeExecutor) waitUntil(at time.Time) {
	if resto := time.Until(at); resto > spinThreshold {
		timer := time.NewTimer(resto - spinThreshold)
		select {
		case <-x.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	for time.Now().Before(at) {
		// espera activa: el resto es menor a spinThreshold
	}
}
