// Package classify envuelve al clasificador externo detrás de un contrato de
// request/response con budget acotado. El camino crítico de actuación nunca
// bloquea esperando al clasificador: Classify retorna de inmediato y el
// resultado (o el timeout degradado a UNKNOWN) llega por el canal de
// resultados.
package classify

import (
	"time"

	"github.com/google/uuid"
)

// Gateway es el contrato hacia el clasificador externo.
//
// Classify emite un request no bloqueante para el frame indicado. Si el
// clasificador no responde dentro del budget, o no está alcanzable, se
// entrega UNKNOWN por el canal de resultados: el pipeline degrada a
// fail-safe pass-through en lugar de estancarse.
type Gateway interface {
	Classify(frameRef uuid.UUID, budget time.Duration)
	Stop() error
}
