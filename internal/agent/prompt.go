package agent

import (
	"fmt"
	"strings"

	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/schema"
)

// Prompt is the fixed system instruction for one schema. It is built once at
// startup and shared by every request.
type Prompt struct {
	system string
}

func NewPrompt(description schema.Description, dialect database.Dialect) Prompt {
	return Prompt{system: buildSystemPrompt(dialectLabel(dialect), schema.Render(description))}
}

func (p Prompt) System() string {
	return p.system
}

func (p Prompt) IsZero() bool {
	return p.system == ""
}

var promptRules = []string{
	"Siempre responde en español, sin importar el idioma de entrada del usuario.",
	"Usa únicamente las tablas y columnas que aparecen en el esquema.",
	"Asegúrate de que las consultas estén optimizadas: evita subconsultas innecesarias, filtros redundantes o joins innecesarios.",
	"Utiliza el formato de fecha estándar: YYYY-MM-DD.",
	"Devuelve exclusivamente la consulta SQL sin explicaciones, sin formato markdown ni comentarios.",
	"Usa JOINs explícitos con INNER JOIN o LEFT JOIN cuando sea necesario relacionar tablas.",
	"Para contar registros, utiliza COUNT(*); para sumar valores, usa SUM(nombre_columna).",
	"Si se requiere agrupamiento, aplica GROUP BY con las columnas pertinentes.",
	"Ordena los resultados si la intención del usuario lo sugiere, usando ORDER BY con la columna y la dirección adecuada (ASC o DESC).",
	"Limita los resultados si se solicita el “primero”, “más caro”, “último”, etc., utilizando LIMIT 1 junto con ORDER BY.",
}

func buildSystemPrompt(dialect, schemaText string) string {
	var b strings.Builder
	b.WriteString("Eres un experto en bases de datos ")
	b.WriteString(dialect)
	b.WriteString(". Tu tarea es traducir preguntas en lenguaje natural a consultas SQL válidas, precisas y eficientes, basadas exclusivamente en el siguiente esquema de base de datos:\n\n")
	b.WriteString(schemaText)
	b.WriteString("\n\nInstrucciones estrictas:\n")
	for i, rule := range promptRules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}
	b.WriteString("\nTu respuesta debe ser solo una línea limpia de SQL correctamente formada. No incluyas explicaciones, contexto, comentarios ni nada adicional.")
	return b.String()
}

func dialectLabel(dialect database.Dialect) string {
	switch dialect {
	case database.DialectDuckDB:
		return "DuckDB"
	case database.DialectSQLite:
		return "SQLite"
	default:
		return "PostgreSQL"
	}
}
