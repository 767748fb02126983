// Package timing implementa el modelo de tiempo del sorter: convierte un
// evento de detección en el deadline absoluto de actuación, a partir de la
// velocidad de la lane y la distancia sensor→eyector.
package timing

import (
	"fmt"
	"time"

	"API-BEANSORT/internal/models"
)

// LaneProfile son los parámetros físicos de una lane, cargados una vez al
// arranque. Cambiarlos con items en vuelo es comportamiento indefinido:
// solo se aplican entre corridas.
type LaneProfile struct {
	Lane                    int
	SpeedMPS                float64 // velocidad de caída/cinta en m/s
	SensorToEjectorDistance float64 // metros entre sensor y eyector
	ItemWidthMargin         float64 // metros, varianza de tamaño del item
}

// Validate verifica el perfil al arranque. Velocidad o distancia no
// positivas son fatales (ErrInvalidConfiguration).
func (p LaneProfile) Validate() error {
	if p.SpeedMPS <= 0 {
		return fmt.Errorf("%w: lane %d con speed_mps=%.4f (debe ser > 0)",
			models.ErrInvalidConfiguration, p.Lane, p.SpeedMPS)
	}
	if p.SensorToEjectorDistance <= 0 {
		return fmt.Errorf("%w: lane %d con sensor_to_ejector_m=%.4f (debe ser > 0)",
			models.ErrInvalidConfiguration, p.Lane, p.SensorToEjectorDistance)
	}
	if p.ItemWidthMargin < 0 {
		return fmt.Errorf("%w: lane %d con item_width_margin_m=%.4f (debe ser >= 0)",
			models.ErrInvalidConfiguration, p.Lane, p.ItemWidthMargin)
	}
	return nil
}

// ComputeDeadline calcula el instante absoluto en que el eyector debe
// disparar para el item detectado en detectedAt.
//
// Función pura: determinística y monótona en sus entradas (más velocidad ⇒
// deadline más temprano; más distancia ⇒ más tarde). El margen de ancho
// centra la ventana de disparo sobre un objeto real no puntual: se apunta
// al centro del item, no a su borde de ataque.
func ComputeDeadline(detectedAt time.Time, p LaneProfile) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, err
	}

	travel := (p.SensorToEjectorDistance + p.ItemWidthMargin/2.0) / p.SpeedMPS
	return detectedAt.Add(time.Duration(travel * float64(time.Second))), nil
}
