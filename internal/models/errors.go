package models

import "errors"

// Taxonomía de errores del pipeline.
//
// Solo ErrInvalidConfiguration es fatal para el sistema completo (startup).
// Todos los demás se contienen al item/canal afectado: se cuentan, se
// loguean y el pipeline sigue procesando el resto de los items en vuelo.
var (
	// ErrInvalidConfiguration indica configuración inválida al arranque (fatal)
	ErrInvalidConfiguration = errors.New("configuración inválida")

	// ErrTimeout indica que el clasificador no respondió dentro del budget;
	// el tracker lo interpreta como UNKNOWN (fail-safe pass-through)
	ErrTimeout = errors.New("timeout del clasificador")

	// ErrChannelBusy indica un intento de disparo dentro del min_refire_interval.
	// El scheduler ya debería haberlo prevenido vía tie-break, así que esto es
	// una falla de consistencia interna: se loguea como fatal para ese evento,
	// nunca se reintenta
	ErrChannelBusy = errors.New("canal en cooldown (min_refire_interval)")

	// ErrHardwareFault indica un error reportado por el I/O físico del eyector
	ErrHardwareFault = errors.New("falla de hardware en eyector")

	// ErrChannelDegraded indica que el canal fue marcado degradado por fallas
	ErrChannelDegraded = errors.New("canal degradado")

	// ErrUnknownChannel indica un channel_id que no existe en la configuración
	ErrUnknownChannel = errors.New("canal desconocido")
)
