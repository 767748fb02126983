package web

import (
	"fmt"
	"net/http"

	"API-BEANSORT/internal/actuator"
	"API-BEANSORT/internal/monitoring"
)

// StatusPageHandler sirve una página web con el estado del banco de
// eyectores y los contadores del pipeline, para la pantalla de la sala
// de control
func StatusPageHandler(bank *actuator.Bank, counters *monitoring.PipelineCounters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="es">
<head>
	<meta charset="UTF-8">
	<meta http-equiv='refresh' content='5'>
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Estado Línea de Selección</title>
	<style>
		body {
			font-family: 'Segoe UI', Arial, sans-serif;
			background: linear-gradient(120deg, #e0eafc 0%%, #cfdef3 100%%);
			margin: 0;
			padding: 0;
		}
		.container {
			max-width: 900px;
			margin: 40px auto;
			background: #fff;
			border-radius: 16px;
			box-shadow: 0 4px 24px rgba(0,0,0,0.08);
			padding: 32px 24px;
		}
		h1 {
			text-align: center;
			color: #2a5298;
			margin-bottom: 32px;
		}
		table {
			width: 100%%;
			border-collapse: collapse;
			margin-bottom: 16px;
		}
		th, td {
			padding: 12px 8px;
			text-align: left;
		}
		th {
			background: #2a5298;
			color: #fff;
			font-weight: 600;
			border-bottom: 2px solid #e0eafc;
		}
		tr:nth-child(even) {
			background: #f4f8fb;
		}
		tr:hover {
			background: #e0eafc;
		}
		.error {
			color: #d32f2f;
			font-weight: bold;
		}
		.ok {
			color: #388e3c;
			font-weight: bold;
		}
		.counter {
			font-size: 1.1em;
			font-weight: 600;
			color: #2a5298;
		}
		@media (max-width: 600px) {
			.container { padding: 8px; }
			th, td { padding: 8px 4px; font-size: 0.95em; }
		}
	</style>
</head>
<body>
	<div class="container">
		<h1>Banco de Eyectores</h1>
		<table>
			<tr><th>Canal</th><th>Lane</th><th>Pulso</th><th>Cooldown</th><th>Disparos</th><th>Fallas</th><th>Estado</th></tr>
`)
		for _, ch := range bank.Snapshot() {
			estado := `<span class='ok'>OPERATIVO</span>`
			if ch.Degraded {
				estado = `<span class='error'>DEGRADADO</span>`
			}
			fmt.Fprintf(w, `			<tr><td>#%d</td><td>%d</td><td>%.0f ms</td><td>%.0f ms</td><td>%d</td><td>%d</td><td>%s</td></tr>
`, ch.ID, ch.Lane, ch.PulseDurationMs, ch.MinRefireMs, ch.FireCount, ch.FaultCount, estado)
		}

		snap := counters.Snapshot()
		fmt.Fprintf(w, `		</table>
		<h1>Pipeline</h1>
		<table>
			<tr><th>Detectados</th><th>Eyectados</th><th>Expirados</th><th>Suprimidos (pass)</th><th>Timeouts clasificador</th><th>Missed sorts</th></tr>
			<tr>
				<td class='counter'>%d</td>
				<td class='counter'>%d</td>
				<td class='counter'>%d</td>
				<td class='counter'>%d</td>
				<td class='counter'>%d</td>
				<td class='counter'>%d</td>
			</tr>
		</table>
	</div>
</body>
</html>`,
			snap.Detected, snap.Actuated, snap.Expired,
			snap.SuppressedPass, snap.ClassifierTimeouts, snap.MissedSorts)
	}
}
