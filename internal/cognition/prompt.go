package cognition

import (
	"fmt"
	"strings"
	"time"

	"jarvis/internal/tools"
)

var (
	weekdays = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}
	months   = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}
)

const persona = `Você é o JARVIS, assistente de voz pessoal. Fale sempre em português do Brasil, trate o usuário por "senhor" e seja breve: suas respostas serão faladas em voz alta.`

const voiceGuide = `VOZ E EMOÇÃO:
- Comece respostas em texto com UMA etiqueta de emoção entre parênteses: (neutro), (feliz), (triste), (surpreso), (preocupado) ou (sarcastico).
- No máximo duas frases curtas. Sem markdown, listas, emojis ou URLs.`

const planContract = `AUTOMAÇÃO:
Quando o pedido exigir ferramentas, responda APENAS com um array JSON, sem texto em volta:
[{"task_id": "t1", "target_tool": "<ferramenta>", "initial_args": {"comando": "..."}, "dependencies": []}]
- task_id únicos (t1, t2, ...).
- dependencies lista os task_id que precisam terminar antes.
- Tarefas independentes ficam sem dependências e rodam em paralelo.
- Para usar o resultado de outra tarefa escreva {t1} dentro de um argumento.`

// Date renders t as "Hoje é segunda-feira, 19 de outubro de 2026, 14:05."
func Date(t time.Time) string {
	return fmt.Sprintf("Hoje é %s, %d de %s de %d, %02d:%02d.",
		weekdays[t.Weekday()], t.Day(), months[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// SystemPrompt assembles the instructions the model sees on every turn.
func SystemPrompt(now time.Time, catalog string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n")
	b.WriteString(Date(now))
	b.WriteString("\n\n")
	b.WriteString(voiceGuide)
	b.WriteString("\n\n")
	b.WriteString(planContract)
	b.WriteString("\n\nFERRAMENTAS DISPONÍVEIS:\n")
	if strings.TrimSpace(catalog) == "" {
		b.WriteString("(nenhuma)")
	} else {
		b.WriteString(catalog)
	}
	b.WriteString("\n\n")
	b.WriteString(tools.ZeroDirective)
	return b.String()
}

// UserPrompt puts the recalled memory in front of the utterance.
func UserPrompt(text, memoryContext string) string {
	mem := strings.TrimSpace(memoryContext)
	if mem == "" {
		mem = "(nada relevante)"
	}
	return "MEMÓRIA RELEVANTE:\n" + mem + "\n\nUSUÁRIO: " + text
}

const curiosityPrompt = `Você é o JARVIS. Gere UMA pergunta curta de acompanhamento, com no máximo 12 palavras, sobre o assunto da conversa. Decida se a pergunta cabe na conversa (não cabe em saudações, despedidas ou confirmações). Responda com JSON {"perguntar": true|false, "pergunta": "<pergunta sem etiqueta de emoção>"}.`
