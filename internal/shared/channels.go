package shared

import (
	"sync"

	"API-BEANSORT/internal/models"
)

// ChannelManager gestiona todos los canales compartidos de la aplicación
// usando patrón Singleton. El handoff entre etapas del pipeline es siempre
// asíncrono: la decisión de disparo nunca bloquea en I/O del clasificador.
type ChannelManager struct {
	// Canal para eventos de trigger del sensor de barrera
	triggerChannel chan models.TriggerEvent

	// Canal para resultados del clasificador
	resultChannel chan models.ClassificationResult

	// Canal para eventos terminales de items (archivo + WebSocket)
	itemEventChannel chan models.ItemEvent

	// Mutex para acceso concurrente seguro
	mu sync.RWMutex

	// Flags para saber si los canales ya fueron inicializados
	triggerInitialized bool
	resultInitialized  bool
	eventInitialized   bool
}

var (
	// Instancia única del ChannelManager (Singleton)
	instance *ChannelManager
	once     sync.Once
)

// GetChannelManager retorna la instancia única del gestor de canales
// Si no existe, la crea automáticamente (thread-safe)
func GetChannelManager() *ChannelManager {
	once.Do(func() {
		instance = &ChannelManager{}
	})
	return instance
}

// GetTriggerChannel retorna el canal de eventos del sensor.
// Si no existe, lo crea automáticamente con buffer de 256
func (cm *ChannelManager) GetTriggerChannel() chan models.TriggerEvent {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.triggerInitialized {
		cm.triggerChannel = make(chan models.TriggerEvent, 256)
		cm.triggerInitialized = true
	}

	return cm.triggerChannel
}

// GetResultChannel retorna el canal de resultados del clasificador.
// Si no existe, lo crea automáticamente con buffer de 256
func (cm *ChannelManager) GetResultChannel() chan models.ClassificationResult {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.resultInitialized {
		cm.resultChannel = make(chan models.ClassificationResult, 256)
		cm.resultInitialized = true
	}

	return cm.resultChannel
}

// GetItemEventChannel retorna el canal de eventos terminales de items.
// Si no existe, lo crea automáticamente con buffer de 1000
func (cm *ChannelManager) GetItemEventChannel() chan models.ItemEvent {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.eventInitialized {
		cm.itemEventChannel = make(chan models.ItemEvent, 1000)
		cm.eventInitialized = true
	}

	return cm.itemEventChannel
}

// CloseAll cierra todos los canales (llamar al finalizar la aplicación)
func (cm *ChannelManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.triggerInitialized && cm.triggerChannel != nil {
		close(cm.triggerChannel)
		cm.triggerInitialized = false
	}

	if cm.resultInitialized && cm.resultChannel != nil {
		close(cm.resultChannel)
		cm.resultInitialized = false
	}

	if cm.eventInitialized && cm.itemEventChannel != nil {
		close(cm.itemEventChannel)
		cm.eventInitialized = false
	}
}
