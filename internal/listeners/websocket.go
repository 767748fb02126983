package listeners

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"API-BEANSORT/internal/models"
	"API-BEANSORT/internal/monitoring"
)

// WebSocketMessage representa un mensaje enviado a través del WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`      // "item_ejected", "item_expired", "item_suppressed", "flow_counters"
	Timestamp string      `json:"timestamp"` // ISO 8601 timestamp
	Lane      int         `json:"lane"`
	Data      interface{} `json:"data"` // Datos específicos del evento
}

// Client representa un cliente WebSocket conectado
type Client struct {
	ID       string
	Conn     *websocket.Conn
	RoomName string // "lane_1", "lane_2", ... o "counters"
	Send     chan []byte
	Hub      *WebSocketHub
}

// WebSocketHub maneja todas las conexiones WebSocket y las rooms
type WebSocketHub struct {
	// Rooms organiza clientes por nombre de room (ej: "lane_1")
	Rooms map[string]map[*Client]bool

	// Canales de comunicación
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage contiene el mensaje y el nombre de la room objetivo
type BroadcastMessage struct {
	RoomName string
	Message  []byte
}

// Upgrader de HTTP a WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// En producción, verificar origen
		return true // Permitir todos los orígenes (desarrollo)
	},
}

// NewWebSocketHub crea un nuevo hub de WebSocket
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		Rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client, 10),
		Unregister: make(chan *Client, 10),
		Broadcast:  make(chan *BroadcastMessage, 100),
	}
}

// Run inicia el hub de WebSocket (debe ejecutarse en goroutine)
func (h *WebSocketHub) Run() {
	log.Println("🔌 WebSocket Hub iniciado")

	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			// Crear room si no existe
			if h.Rooms[client.RoomName] == nil {
				h.Rooms[client.RoomName] = make(map[*Client]bool)
				log.Printf("📦 Room creada: %s", client.RoomName)
			}
			h.Rooms[client.RoomName][client] = true
			h.mu.Unlock()
			log.Printf("✅ Cliente %s conectado a room %s (Total: %d)",
				client.ID, client.RoomName, len(h.Rooms[client.RoomName]))

		case client := <-h.Unregister:
			h.mu.Lock()
			if clients, ok := h.Rooms[client.RoomName]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.Send)
					log.Printf("❌ Cliente %s desconectado de room %s (Restantes: %d)",
						client.ID, client.RoomName, len(clients))

					// Eliminar room si está vacía
					if len(clients) == 0 {
						delete(h.Rooms, client.RoomName)
						log.Printf("🗑️  Room %s eliminada (vacía)", client.RoomName)
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.Broadcast:
			h.mu.RLock()
			clients := h.Rooms[message.RoomName]
			h.mu.RUnlock()

			for client := range clients {
				select {
				case client.Send <- message.Message:
				default:
					// Canal lleno, desconectar cliente
					log.Printf("⚠️  Canal lleno para cliente %s, desconectando", client.ID)
					h.Unregister <- client
				}
			}
		}
	}
}

// CreateRoomsForLanes pre-crea las rooms de cada lane configurada
func (h *WebSocketHub) CreateRoomsForLanes(laneIDs []int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, laneID := range laneIDs {
		roomName := fmt.Sprintf("lane_%d", laneID)
		if h.Rooms[roomName] == nil {
			h.Rooms[roomName] = make(map[*Client]bool)
			log.Printf("📦 Room pre-creada: %s", roomName)
		}
	}
}

// SubscribeToItemEvents consume el canal de eventos terminales del tracker y
// hace broadcast automático a la room de la lane correspondiente
func (h *WebSocketHub) SubscribeToItemEvents(events <-chan models.ItemEvent) {
	go func() {
		log.Println("🔔 WebSocket suscrito al canal de eventos de items")

		for event := range events {
			h.NotifyItemEvent(event)
		}

		log.Println("⚠️  Canal de eventos de items cerrado, suscripción terminada")
	}()
}

// NotifyItemEvent notifica el evento terminal de un item a la room de su lane
func (h *WebSocketHub) NotifyItemEvent(event models.ItemEvent) {
	roomName := fmt.Sprintf("lane_%d", event.Lane)

	message := WebSocketMessage{
		Type:      event.Type(),
		Timestamp: time.Now().Format(time.RFC3339),
		Lane:      event.Lane,
		Data:      event,
	}

	h.sendMessageToRoom(roomName, message)
}

// NotifyCounters notifica el snapshot de contadores del pipeline a la room
// "counters"
func (h *WebSocketHub) NotifyCounters(snapshot monitoring.CountersSnapshot) {
	message := WebSocketMessage{
		Type:      "flow_counters",
		Timestamp: time.Now().Format(time.RFC3339),
		Data:      snapshot,
	}

	h.sendMessageToRoom("counters", message)
}

// sendMessageToRoom envía un mensaje a todos los clientes de una room
func (h *WebSocketHub) sendMessageToRoom(roomName string, message WebSocketMessage) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error al serializar mensaje WebSocket: %v", err)
		return
	}

	select {
	case h.Broadcast <- &BroadcastMessage{RoomName: roomName, Message: jsonData}:
	default:
		log.Printf("⚠️  Canal de broadcast lleno, mensaje %s descartado", message.Type)
	}
}

// GetRoomStats retorna estadísticas de las rooms
func (h *WebSocketHub) GetRoomStats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make(map[string]int)
	for roomName, clients := range h.Rooms {
		stats[roomName] = len(clients)
	}
	return stats
}

// readPump lee mensajes del cliente WebSocket
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  Error de lectura WebSocket: %v", err)
			}
			break
		}

		// Procesar mensajes del cliente (ej: ping/pong, comandos)
		log.Printf("📨 Mensaje recibido de cliente %s: %s", c.ID, string(message))
	}
}

// writePump escribe mensajes al cliente WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub cerró el canal
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Agregar mensajes en cola al frame actual
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocketConnection maneja una nueva conexión WebSocket
func HandleWebSocketConnection(hub *WebSocketHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Obtener room del parámetro de ruta
		roomName := c.Param("room")
		if roomName == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "room parameter is required",
			})
			return
		}

		// Validar formato de room. Aceptamos dos formatos:
		//  - lane_{id}
		//  - counters
		var laneID int
		if roomName != "counters" {
			if _, err := fmt.Sscanf(roomName, "lane_%d", &laneID); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "invalid room format, expected: lane_N or counters",
				})
				return
			}
		}

		// Upgrade HTTP a WebSocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("❌ Error al hacer upgrade WebSocket: %v", err)
			return
		}

		// Crear cliente
		clientID := fmt.Sprintf("%s_%d", c.ClientIP(), time.Now().UnixNano())
		client := &Client{
			ID:       clientID,
			Conn:     conn,
			RoomName: roomName,
			Send:     make(chan []byte, 256),
			Hub:      hub,
		}

		// Registrar cliente
		client.Hub.Register <- client

		// Iniciar pumps en goroutines
		go client.writePump()
		go client.readPump()

		log.Printf("🔌 Cliente WebSocket conectado: %s → %s", clientID, roomName)
	}
}

// SetupWebSocketRoutes configura las rutas de WebSocket en el router
func SetupWebSocketRoutes(router *gin.Engine, hub *WebSocketHub) {
	// WebSocket endpoint: ws://host/ws/lane_1
	router.GET("/ws/:room", HandleWebSocketConnection(hub))

	// Endpoint REST para estadísticas de WebSocket
	router.GET("/ws/stats", func(c *gin.Context) {
		stats := hub.GetRoomStats()
		c.JSON(http.StatusOK, gin.H{
			"rooms":       stats,
			"total_rooms": len(stats),
			"total_clients": func() int {
				total := 0
				for _, count := range stats {
					total += count
				}
				return total
			}(),
		})
	})
}
