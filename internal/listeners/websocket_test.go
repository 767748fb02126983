package listeners

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"API-BEANSORT/internal/models"
	"API-BEANSORT/internal/monitoring"
)

func TestHubNotificaEventosALaRoomDeLaLane(t *testing.T) {
	hub := NewWebSocketHub()

	events := make(chan models.ItemEvent, 1)
	hub.SubscribeToItemEvents(events)

	events <- models.ItemEvent{
		ItemID:         7,
		Lane:           2,
		ChannelID:      1,
		Classification: models.ClassBad,
		Status:         models.StatusActuated,
	}
	close(events)

	select {
	case msg := <-hub.Broadcast:
		assert.Equal(t, "lane_2", msg.RoomName)

		var decoded WebSocketMessage
		require.NoError(t, json.Unmarshal(msg.Message, &decoded))
		assert.Equal(t, "item_ejected", decoded.Type)
		assert.Equal(t, 2, decoded.Lane)
	case <-time.After(time.Second):
		t.Fatal("el evento del item nunca llegó al broadcast del hub")
	}
}

func TestHubNotificaContadores(t *testing.T) {
	hub := NewWebSocketHub()

	hub.NotifyCounters(monitoring.CountersSnapshot{Detected: 4, Actuated: 1, Timestamp: time.Now()})

	select {
	case msg := <-hub.Broadcast:
		assert.Equal(t, "counters", msg.RoomName)

		var decoded WebSocketMessage
		require.NoError(t, json.Unmarshal(msg.Message, &decoded))
		assert.Equal(t, "flow_counters", decoded.Type)
	default:
		t.Fatal("el snapshot de contadores nunca llegó al broadcast del hub")
	}
}
