// Package web expone la API HTTP de estado y operación de la máquina:
// consulta de items en vuelo, contadores del pipeline, estado del banco de
// eyectores y acciones de mantención sobre canales individuales.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"API-BEANSORT/internal/actuator"
	"API-BEANSORT/internal/listeners"
	"API-BEANSORT/internal/monitoring"
	"API-BEANSORT/internal/scheduler"
	"API-BEANSORT/internal/tracker"
)

type HTTPFrontend struct {
	router        *gin.Engine
	addr          string // Dirección completa host:port
	tracker       *tracker.Tracker
	bank          *actuator.Bank
	sched         *scheduler.Scheduler
	counters      *monitoring.PipelineCounters
	deviceMonitor *monitoring.DeviceMonitor
	wsHub         *listeners.WebSocketHub
	startedAt     time.Time
}

func NewHTTPFrontend(addr string) *HTTPFrontend {
	router := gin.Default()

	// Configurar CORS para permitir todas las peticiones
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Manejador personalizado para rutas 404
	router.NoRoute(func(c *gin.Context) {
		RespondWithError(c, http.StatusNotFound, ErrCodeNotFound,
			"🤔 La ruta que buscas no existe en este servidor",
			gin.H{
				"available_endpoints": gin.H{
					"estado": []string{
						"GET /status",
						"GET /counters",
						"GET /items",
						"GET /items/:id",
					},
					"canales": []string{
						"GET /channels",
						"POST /channels/:id/degrade",
						"POST /channels/:id/restore",
					},
					"monitoreo": []string{
						"GET /monitoring/devices",
						"GET /visualizer",
					},
					"websocket": []string{
						"GET /ws/:room",
						"GET /ws/stats",
					},
				},
			},
			"Revisa la documentación o contacta al equipo de desarrollo")
	})

	// Crear e iniciar WebSocket Hub
	wsHub := listeners.NewWebSocketHub()
	go wsHub.Run()

	return &HTTPFrontend{
		router:    router,
		addr:      addr,
		wsHub:     wsHub,
		startedAt: time.Now(),
	}
}

// SetTracker vincula el tracker de items al frontend HTTP
func (h *HTTPFrontend) SetTracker(t *tracker.Tracker) {
	h.tracker = t
}

// SetBank vincula el banco de eyectores al frontend HTTP
func (h *HTTPFrontend) SetBank(b *actuator.Bank) {
	h.bank = b
}

// SetScheduler vincula el scheduler al frontend HTTP
func (h *HTTPFrontend) SetScheduler(s *scheduler.Scheduler) {
	h.sched = s
}

// SetCounters vincula los contadores del pipeline al frontend HTTP
func (h *HTTPFrontend) SetCounters(c *monitoring.PipelineCounters) {
	h.counters = c
}

// SetDeviceMonitor vincula el monitor de dispositivos al frontend HTTP
func (h *HTTPFrontend) SetDeviceMonitor(m *monitoring.DeviceMonitor) {
	h.deviceMonitor = m
}

// GetWebSocketHub retorna el hub para suscripciones externas
func (h *HTTPFrontend) GetWebSocketHub() *listeners.WebSocketHub {
	return h.wsHub
}

func (h *HTTPFrontend) setupRoutes() {
	// =========================================================
	// ESTADO GENERAL
	// =========================================================
	h.router.GET("/status", func(c *gin.Context) {
		status := gin.H{
			"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
			"items_in_vuelo": h.tracker.Count(),
			"cola_scheduler": h.sched.Pending(),
			"counters":       h.counters.Snapshot(),
			"channels":       h.bank.Snapshot(),
		}
		c.JSON(http.StatusOK, status)
	})

	h.router.GET("/counters", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.counters.Snapshot())
	})

	// =========================================================
	// ITEMS EN VUELO
	// =========================================================
	h.router.GET("/items", func(c *gin.Context) {
		items := h.tracker.InFlight()
		c.JSON(http.StatusOK, gin.H{
			"count": len(items),
			"items": items,
		})
	})

	h.router.GET("/items/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			BadRequest(c, "id debe ser un número entero válido", gin.H{"id": c.Param("id")})
			return
		}

		item, ok := h.tracker.Get(id)
		if !ok {
			RespondWithError(c, http.StatusNotFound, ErrCodeItemNotFound,
				"Item no encontrado o ya terminal", gin.H{"id": id},
				"Los items salen del tracker al alcanzar un estado terminal")
			return
		}

		c.JSON(http.StatusOK, item)
	})

	// =========================================================
	// BANCO DE EYECTORES
	// =========================================================
	h.router.GET("/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"channels": h.bank.Snapshot()})
	})

	// Marca un canal como degradado: el scheduler deja de comprometer
	// disparos sobre él hasta que mantención lo restaure
	h.router.POST("/channels/:id/degrade", func(c *gin.Context) {
		h.setChannelDegraded(c, true)
	})

	h.router.POST("/channels/:id/restore", func(c *gin.Context) {
		h.setChannelDegraded(c, false)
	})

	// =========================================================
	// MONITOREO DE DISPOSITIVOS
	// =========================================================
	h.router.GET("/monitoring/devices", func(c *gin.Context) {
		if h.deviceMonitor == nil {
			RespondWithError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavail,
				"Monitor de dispositivos no disponible", nil,
				"El monitoreo está deshabilitado en la configuración")
			return
		}
		c.JSON(http.StatusOK, h.deviceMonitor.GetAllDevices())
	})

	// Página HTML de estado para la sala de control
	h.router.GET("/visualizer", gin.WrapF(StatusPageHandler(h.bank, h.counters)))
}

func (h *HTTPFrontend) setChannelDegraded(c *gin.Context, degraded bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		BadRequest(c, "id debe ser un número entero válido", gin.H{"id": c.Param("id")})
		return
	}

	ch, ok := h.bank.Channel(id)
	if !ok {
		RespondWithError(c, http.StatusNotFound, ErrCodeChannelNotFound,
			"Canal de eyector no encontrado", gin.H{"id": id},
			"Consulta GET /channels para ver los canales configurados")
		return
	}

	ch.SetDegraded(degraded)

	action := "degradado"
	if !degraded {
		action = "restaurado"
	}
	RespondWithSuccess(c, http.StatusOK, ch.Snapshot(),
		"Canal "+strconv.Itoa(id)+" "+action)
}

func (h *HTTPFrontend) Start() error {
	h.setupRoutes()

	// Configurar rutas de WebSocket
	listeners.SetupWebSocketRoutes(h.router, h.wsHub)

	return h.router.Run(h.addr)
}

func (h *HTTPFrontend) GetRouter() *gin.Engine {
	return h.router
}
