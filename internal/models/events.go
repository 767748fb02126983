package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerEvent es un evento discreto del sensor de barrera (beam-break):
// un item acaba de pasar frente al sensor de la lane indicada
type TriggerEvent struct {
	Lane       int       `json:"lane"`
	FrameRef   uuid.UUID `json:"frame_ref"`
	DetectedAt time.Time `json:"detected_at"`
}

func (t TriggerEvent) String() string {
	return fmt.Sprintf("Trigger{Lane: %d, Frame: %s, DetectedAt: %s}",
		t.Lane, t.FrameRef, t.DetectedAt.Format("15:04:05.000000"))
}

// ClassificationResult es la respuesta del clasificador para un frame
type ClassificationResult struct {
	FrameRef   uuid.UUID      `json:"frame_ref"`
	Label      Classification `json:"label"`
	Confidence float64        `json:"confidence"`
	ReceivedAt time.Time      `json:"received_at"`
}

// ItemEvent es el evento terminal de un item, publicado hacia el archivo de
// eventos (Postgres) y el WebSocket hub cuando el item sale del pipeline
type ItemEvent struct {
	ItemID         uint64         `json:"item_id"`
	Lane           int            `json:"lane"`
	ChannelID      int            `json:"channel_id,omitempty"`
	FrameRef       uuid.UUID      `json:"frame_ref"`
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence"`
	Status         ItemStatus     `json:"status"`
	Reason         SuppressReason `json:"reason,omitempty"`
	DetectedAt     time.Time      `json:"detected_at"`
	Deadline       time.Time      `json:"deadline"`
	FiredAt        time.Time      `json:"fired_at,omitempty"`
}

// TipoEventoItem para serialización hacia el frontend
func (e ItemEvent) Type() string {
	switch e.Status {
	case StatusActuated:
		return "item_ejected"
	case StatusExpired:
		return "item_expired"
	case StatusSuppressed:
		return "item_suppressed"
	default:
		return "item_update"
	}
}

// DeviceStatus representa el estado de conectividad de un dispositivo
// externo monitoreado por heartbeat (clasificador, puente firmata, PLC)
type DeviceStatus struct {
	ID                int        `json:"id"`
	DeviceName        string     `json:"device_name"`
	IP                string     `json:"ip"`
	Port              int        `json:"port"`
	LastCheck         time.Time  `json:"last_check"`
	LastDisconnection *time.Time `json:"last_disconnection,omitempty"`
	IsDisconnected    bool       `json:"is_disconnected"`
	ResponseTimeMs    int64      `json:"response_time_ms"`
}

// Recipe es una receta de producto sincronizada desde el SQL Server de
// planta (MES): parámetros de timing y clasificación por producto.
// Solo se aplica entre corridas, nunca con items en vuelo.
type Recipe struct {
	Product          string  `json:"product"`
	LaneSpeedMPS     float64 `json:"lane_speed_mps"`
	ItemWidthMarginM float64 `json:"item_width_margin_m"`
	BudgetMs         int     `json:"budget_ms"`
	MinConfidence    float64 `json:"min_confidence"`
}
