package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Classification es el resultado del clasificador para un item
type Classification int

const (
	ClassPending Classification = iota
	ClassGood
	ClassBad
	ClassUnknown // el clasificador no respondió dentro del budget
)

func (c Classification) String() string {
	switch c {
	case ClassPending:
		return "PENDING"
	case ClassGood:
		return "GOOD"
	case ClassBad:
		return "BAD"
	case ClassUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// ParseClassification convierte la representación en texto (protocolo del
// clasificador, archivo de eventos) de vuelta al enum
func ParseClassification(s string) (Classification, error) {
	switch s {
	case "PENDING":
		return ClassPending, nil
	case "GOOD":
		return ClassGood, nil
	case "BAD":
		return ClassBad, nil
	case "UNKNOWN":
		return ClassUnknown, nil
	default:
		return ClassUnknown, fmt.Errorf("clasificación desconocida: %q", s)
	}
}

// ItemStatus representa el estado del ciclo de vida de un item
type ItemStatus int

const (
	StatusTracked ItemStatus = iota
	StatusClassified
	StatusScheduled
	StatusActuated
	StatusExpired
	StatusSuppressed
)

func (s ItemStatus) String() string {
	switch s {
	case StatusTracked:
		return "TRACKED"
	case StatusClassified:
		return "CLASSIFIED"
	case StatusScheduled:
		return "SCHEDULED"
	case StatusActuated:
		return "ACTUATED"
	case StatusExpired:
		return "EXPIRED"
	case StatusSuppressed:
		return "SUPPRESSED"
	default:
		return fmt.Sprintf("ItemStatus(%d)", int(s))
	}
}

// ParseItemStatus convierte la representación en texto de vuelta al enum
func ParseItemStatus(s string) (ItemStatus, error) {
	switch s {
	case "TRACKED":
		return StatusTracked, nil
	case "CLASSIFIED":
		return StatusClassified, nil
	case "SCHEDULED":
		return StatusScheduled, nil
	case "ACTUATED":
		return StatusActuated, nil
	case "EXPIRED":
		return StatusExpired, nil
	case "SUPPRESSED":
		return StatusSuppressed, nil
	default:
		return StatusTracked, fmt.Errorf("estado desconocido: %q", s)
	}
}

// Terminal indica si el estado es final (el item ya no se considera en vuelo)
func (s ItemStatus) Terminal() bool {
	return s == StatusActuated || s == StatusExpired || s == StatusSuppressed
}

// SuppressReason es la razón por la que un item fue suprimido (no disparado)
type SuppressReason string

const (
	ReasonNone            SuppressReason = ""
	ReasonChannelBusy     SuppressReason = "channel_busy"     // cooldown de hardware, pierde el tie-break
	ReasonFailSafePass    SuppressReason = "fail_safe_pass"   // GOOD/UNKNOWN: dejar pasar sin disparar
	ReasonChannelDegraded SuppressReason = "channel_degraded" // canal marcado degradado por fallas
)

// TrackedItem es un grano/item físico en vuelo entre detección y actuación.
//
// Deadline se calcula una sola vez al crear el item y es inmutable. Un item
// solo puede transicionar a ACTUATED una vez; un segundo intento es un error
// de programación, no un retry.
type TrackedItem struct {
	ID             uint64         `json:"id"`
	Lane           int            `json:"lane"`
	FrameRef       uuid.UUID      `json:"frame_ref"`
	DetectedAt     time.Time      `json:"detected_at"`
	Deadline       time.Time      `json:"deadline"`
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence"`
	Status         ItemStatus     `json:"status"`
	Reason         SuppressReason `json:"reason,omitempty"`
	FiredAt        time.Time      `json:"fired_at,omitempty"`
}

func (it *TrackedItem) String() string {
	return fmt.Sprintf("Item{ID: %d, Lane: %d, Class: %s, Status: %s, Deadline: %s}",
		it.ID, it.Lane, it.Classification, it.Status, it.Deadline.Format("15:04:05.000"))
}
