package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecipesQueryUsaLaTablaConfigurada(t *testing.T) {
	m := &Manager{recipeTable: "planta.RECETAS_LINEA_2"}
	assert.Contains(t, m.recipesQuery(), "FROM planta.RECETAS_LINEA_2")

	// Sin tabla configurada se usa la tabla por defecto del MES
	vacio := &Manager{}
	assert.Contains(t, vacio.recipesQuery(), "FROM "+DEFAULT_MES_RECIPE_TABLE)
}
