package specialists

import (
	"context"
	"time"

	"jarvis/internal/cognition"
	"jarvis/internal/memory"
	"jarvis/internal/tools"
)

const recallSchema = `{
	"type": "object",
	"properties": {
		"consulta": {"type": "string", "minLength": 1},
		"limite": {"type": "integer", "minimum": 1, "maximum": 10}
	},
	"required": ["consulta"]
}`

// FunctionTools are the plain function tools registered next to the
// specialists. store may be nil.
func FunctionTools(store *memory.Store, now func() time.Time) []tools.Tool {
	if now == nil {
		now = time.Now
	}
	out := []tools.Tool{{
		Name:        "hora_atual",
		Description: "Informa a data e a hora atuais. Args: {}",
		SafeMode:    true,
		Func: func(context.Context, map[string]any) (any, error) {
			return cognition.Date(now()), nil
		},
	}}

	if store != nil {
		out = append(out, tools.Tool{
			Name:        "memoria_buscar",
			Description: `Procura fatos na memória de longo prazo. Args: {"consulta": "<assunto>", "limite": 3}`,
			Schema:      recallSchema,
			SafeMode:    true,
			Func: func(ctx context.Context, args map[string]any) (any, error) {
				query, _ := args["consulta"].(string)
				limit := memory.DefaultLimit
				if n, ok := args["limite"].(float64); ok {
					limit = int(n)
				}
				if n, ok := args["limite"].(int); ok {
					limit = n
				}
				found := store.Recall(ctx, query, limit)
				if found == "" {
					return "Não encontrei nada na memória sobre isso.", nil
				}
				return found, nil
			},
		})
	}
	return out
}
