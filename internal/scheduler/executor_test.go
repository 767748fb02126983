package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"API-BEANSORT/internal/actuator"
	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/monitoring"
)

// backendBloqueante simula un backend lento: cada pulso queda bloqueado hasta
// que el test lo libera, y registra el canal al INICIO del pulso
type backendBloqueante struct {
	mu      sync.Mutex
	inicios []int
	libera  chan struct{}
}

func (b *backendBloqueante) Name() string { return "bloqueante" }

func (b *backendBloqueante) Pulse(_ context.Context, ch *actuator.Channel) error {
	b.mu.Lock()
	b.inicios = append(b.inicios, ch.ID)
	b.mu.Unlock()
	<-b.libera
	return nil
}

func (b *backendBloqueante) iniciados() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inicios)
}

func TestPulsoLentoNoRetrasaOtroCanal(t *testing.T) {
	backend := &backendBloqueante{libera: make(chan struct{})}
	bank, err := actuator.NewBank([]config.EjectorChannel{
		{ID: 1, Lane: 1, PulseDuration: "25ms", MinRefireInterval: "100ms"},
		{ID: 2, Lane: 2, PulseDuration: "25ms", MinRefireInterval: "100ms"},
	}, backend, 2*time.Millisecond)
	require.NoError(t, err)

	executor := NewRealtimeExecutor(bank, monitoring.NewPipelineCounters())
	go executor.Run()
	defer executor.Stop()

	ch1, _ := bank.Channel(1)
	ch2, _ := bank.Channel(2)

	at := time.Now()
	require.NoError(t, ch1.TryReserve(at))
	require.NoError(t, ch2.TryReserve(at))

	executor.Dispatch(FireCommand{ItemID: 1, ChannelID: 1, At: at})
	executor.Dispatch(FireCommand{ItemID: 2, ChannelID: 2, At: at})

	// El pulso del canal 2 debe INICIAR mientras el del canal 1 sigue
	// bloqueado en el backend: el thread de actuación no se queda esperando
	// la duración del pulso anterior
	require.Eventually(t, func() bool { return backend.iniciados() == 2 },
		time.Second, time.Millisecond,
		"el segundo pulso no inició mientras el primero seguía en el backend")

	close(backend.libera)
}
