package tools

import (
	"strings"

	"jarvis/pkg/textutil"
)

// The interception list and the Zero Directive describe the same contract
// from both ends: the prompt tells the model which tools exist, and the
// registry rewrites the names it invents anyway. Change them together.

// SystemSpecialist receives every intercepted name.
const SystemSpecialist = "sistema"

// hallucinated maps tool names the model makes up to the app the user
// probably meant.
var hallucinated = map[string]string{
	"calculadora":    "calculadora",
	"calculator":     "calculadora",
	"browser":        "navegador",
	"navegador":      "navegador",
	"chrome":         "chrome",
	"google_chrome":  "chrome",
	"firefox":        "navegador",
	"notepad":        "bloco de notas",
	"bloco_de_notas": "bloco de notas",
	"bloco_notas":    "bloco de notas",
	"explorer":       "explorador de arquivos",
	"vscode":         "visual studio code",
	"terminal":       "terminal",
	"cmd":            "terminal",
	"abrir_app":      "",
	"open_app":       "",
}

// ZeroDirective is appended to every system prompt.
const ZeroDirective = `DIRETIVA ZERO (obrigatória):
1. Use SOMENTE as ferramentas listadas no catálogo. Nunca invente ferramentas.
2. Para abrir, fechar ou controlar qualquer programa (calculadora, navegador, bloco de notas, terminal, vscode...) use "sistema" com {"comando": "abrir <programa>"}.
3. Conversa pura, perguntas de conhecimento, opiniões e explicações: responda em TEXTO, sem JSON.
4. Música e mídia: use "spotify" com {"comando": "tocar <pedido>"}.
5. Para guardar algo na memória use "memoria_gravar" com {"texto": "..."}.`

// sistemaVerbs start a command sistema understands on its own.
var sistemaVerbs = map[string]bool{
	"abrir": true, "abra": true, "abre": true, "iniciar": true, "open": true,
	"fechar": true, "feche": true, "fecha": true, "encerrar": true, "close": true,
	"volume": true, "aumentar": true, "diminuir": true,
}

// intercept rewrites an invented tool name into a sistema call. A comando
// that already reads as a sistema command is passed on unchanged; otherwise
// the mapped app is opened. Other arguments are dropped.
func intercept(name string, args map[string]any) (string, map[string]any, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	app, ok := hallucinated[key]
	if !ok {
		return name, args, false
	}

	var given string
	for _, k := range []string{"comando", "texto"} {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			given = strings.TrimSpace(s)
			break
		}
	}

	command := given
	if app != "" {
		first, _, _ := strings.Cut(textutil.Fold(textutil.StripPunct(given)), " ")
		if !sistemaVerbs[first] {
			command = "abrir " + app
		}
	}
	return SystemSpecialist, map[string]any{"comando": command}, true
}

// knowledgeTools are names the model uses for "just answer". They degrade to
// the text they carry.
var knowledgeTools = map[string]bool{
	"chat":      true,
	"explainer": true,
	"conversa":  true,
	"responder": true,
	"explicar":  true,
	"resposta":  true,
}

// descriptionOverrides replace whatever a specialist says about itself, so
// the catalog only promises what really exists.
var descriptionOverrides = map[string]string{
	"sistema": `Abre e fecha programas do computador e controla o volume. Args: {"comando": "abrir calculadora" | "fechar navegador" | "volume" | "aumentar volume" | "diminuir volume" | "volume 40"}`,
	"spotify": `Toca músicas, artistas e playlists e controla a reprodução. Args: {"comando": "tocar <música ou artista>" | "pausar" | "continuar" | "próxima" | "anterior"}`,
	"clima":   `Informa o clima atual de uma cidade. Args: {"comando": "<cidade>"}`,
}

// MemoryTool is executed by the task graph runner, not by the registry, but
// the model must still see it in the catalog.
const (
	MemoryTool            = "memoria_gravar"
	memoryToolDescription = `Grava um fato na memória de longo prazo. Args: {"texto": "<fato>"}. Sem texto, grava o resultado das dependências.`
)
