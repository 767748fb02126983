package actuator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"API-BEANSORT/internal/config"
	"API-BEANSORT/internal/models"
)

func bancoDePrueba(t *testing.T) (*Bank, *MockBackend) {
	t.Helper()

	mock := NewMockBackend()
	bank, err := NewBank([]config.EjectorChannel{
		{ID: 1, Lane: 1, PulseDuration: "25ms", MinRefireInterval: "100ms"},
		{ID: 2, Lane: 2, PulseDuration: "25ms", MinRefireInterval: "100ms"},
	}, mock, 2*time.Millisecond)
	require.NoError(t, err)

	return bank, mock
}

func TestFireConReserva(t *testing.T) {
	bank, mock := bancoDePrueba(t)
	ch, ok := bank.Channel(1)
	require.True(t, ok)

	at := time.Now()
	require.NoError(t, ch.TryReserve(at))
	require.NoError(t, bank.Fire(context.Background(), 1, at))

	fires := mock.Fires()
	require.Len(t, fires, 1)
	assert.Equal(t, 1, fires[0].ChannelID)
	assert.Equal(t, 25*time.Millisecond, fires[0].Pulse)
}

func TestReservaRespetaCooldown(t *testing.T) {
	bank, _ := bancoDePrueba(t)
	ch, _ := bank.Channel(1)

	t0 := time.Now()
	require.NoError(t, ch.TryReserve(t0))

	// Dentro del min_refire_interval: el segundo pierde el tie-break
	err := ch.TryReserve(t0.Add(20 * time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrChannelBusy)

	// Pasado el cooldown se puede volver a reservar
	assert.NoError(t, ch.TryReserve(t0.Add(100*time.Millisecond)))
}

func TestReservasEnVueloNoSePisan(t *testing.T) {
	bank, mock := bancoDePrueba(t)
	ch, _ := bank.Channel(1)

	// Dos reservas legítimas (pasado el cooldown) comprometidas antes de que
	// el primer pulso ejecute: la segunda no invalida a la primera
	at1 := time.Now()
	at2 := at1.Add(150 * time.Millisecond)
	require.NoError(t, ch.TryReserve(at1))
	require.NoError(t, ch.TryReserve(at2))

	require.NoError(t, bank.Fire(context.Background(), 1, at1))
	require.NoError(t, bank.Fire(context.Background(), 1, at2))
	assert.Len(t, mock.Fires(), 2)

	// Un dispatch duplicado del primer comando ya no tiene token
	err := bank.Fire(context.Background(), 1, at1)
	assert.ErrorIs(t, err, models.ErrChannelBusy)
	assert.Len(t, mock.Fires(), 2)
}

func TestFireSinReservaEsInconsistencia(t *testing.T) {
	bank, mock := bancoDePrueba(t)

	err := bank.Fire(context.Background(), 1, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrChannelBusy)
	assert.Empty(t, mock.Fires())
}

func TestFireCanalDesconocido(t *testing.T) {
	bank, _ := bancoDePrueba(t)

	err := bank.Fire(context.Background(), 99, time.Now())
	assert.ErrorIs(t, err, models.ErrUnknownChannel)
}

func TestFallaDeHardwareDegradaElCanal(t *testing.T) {
	bank, mock := bancoDePrueba(t)
	ch, _ := bank.Channel(1)
	mock.FailFor[1] = errors.New("solenoide no responde")

	at := time.Now()
	for i := 0; i < faultsToDegrade; i++ {
		require.NoError(t, ch.TryReserve(at))
		err := bank.Fire(context.Background(), 1, at)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrHardwareFault)
		at = at.Add(150 * time.Millisecond)
	}

	// Tras las fallas consecutivas el canal queda degradado y rechaza reservas
	assert.True(t, ch.Degraded())
	err := ch.TryReserve(at)
	assert.ErrorIs(t, err, models.ErrChannelDegraded)

	// El canal 2 sigue operativo: la falla se contiene al canal afectado
	ch2, _ := bank.Channel(2)
	assert.NoError(t, ch2.TryReserve(time.Now()))
}

func TestRestaurarCanalDegradado(t *testing.T) {
	bank, _ := bancoDePrueba(t)
	ch, _ := bank.Channel(1)

	ch.SetDegraded(true)
	assert.ErrorIs(t, ch.TryReserve(time.Now()), models.ErrChannelDegraded)

	ch.SetDegraded(false)
	assert.NoError(t, ch.TryReserve(time.Now()))

	snap := ch.Snapshot()
	assert.False(t, snap.Degraded)
}
