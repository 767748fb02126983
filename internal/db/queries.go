package db

const CREATE_ITEM_EVENT_TABLE_INTERNAL_DB = `
	CREATE TABLE IF NOT EXISTS item_event (
		id             BIGSERIAL PRIMARY KEY,
		item_id        BIGINT NOT NULL,
		lane           INT NOT NULL,
		channel_id     INT,
		frame_ref      UUID NOT NULL,
		classification TEXT NOT NULL,
		confidence     DOUBLE PRECISION NOT NULL,
		status         TEXT NOT NULL,
		reason         TEXT,
		detected_at    TIMESTAMPTZ NOT NULL,
		deadline       TIMESTAMPTZ NOT NULL,
		fired_at       TIMESTAMPTZ,
		archived_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

const INSERT_ITEM_EVENT_INTERNAL_DB = `
	INSERT INTO item_event (
		item_id,
		lane,
		channel_id,
		frame_ref,
		classification,
		confidence,
		status,
		reason,
		detected_at,
		deadline,
		fired_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const SELECT_RECENT_ITEM_EVENTS_INTERNAL_DB = `
	SELECT item_id, lane, channel_id, frame_ref, classification,
	       confidence, status, reason, detected_at, deadline, fired_at
	FROM item_event
	ORDER BY archived_at DESC
	LIMIT $1
`

// La tabla de recetas es configurable (recipe_table); el nombre de tabla no
// puede ir como parámetro SQL, se interpola con fmt.Sprintf
const SELECT_MES_RECIPES = `
	SELECT
		REC_Producto AS producto,
		REC_VelocidadMS AS velocidad_ms,
		REC_MargenAnchoM AS margen_ancho_m,
		REC_BudgetMs AS budget_ms,
		REC_ConfianzaMin AS confianza_min
	FROM %s;
`

const DEFAULT_MES_RECIPE_TABLE = "dbo.RECETAS_SELECCION"
