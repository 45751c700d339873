package orchestrator

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"

	"jarvis/internal/attention"
	"jarvis/internal/bus"
	"jarvis/internal/tools"
	"jarvis/pkg/textutil"
)

var (
	shutdownPhrases = map[string]bool{
		"desligar": true, "desligue": true, "desliga": true,
		"encerrar": true, "encerre": true, "encerra": true,
		"desligar sistema": true, "desligue o sistema": true, "desliga o sistema": true,
		"encerrar sistema": true, "encerre o sistema": true, "pode desligar": true,
	}

	launchVerbs = map[string]bool{
		"abrir": true, "abra": true, "abre": true,
		"iniciar": true, "inicie": true, "inicia": true,
		"executar": true, "execute": true, "executa": true,
		"lancar": true, "lance": true,
	}

	mediaVerbs = map[string]bool{
		"tocar": true, "toque": true, "toca": true,
		"ouvir": true, "escutar": true,
		"coloca": true, "coloque": true, "colocar": true,
		"bota": true, "botar": true, "poe": true,
		"pausar": true, "pause": true, "pausa": true,
		"continuar": true, "continue": true, "retomar": true,
		"proxima": true, "pular": true, "pule": true,
		"anterior": true, "voltar": true,
	}

	articles = map[string]bool{"o": true, "a": true, "os": true, "as": true, "um": true, "uma": true}

	// compound requests belong to the planner.
	compoundMarkers = []string{" e ", " depois ", " então ", " entao "}
)

// direct handles commands that do not need the model. It returns false when
// payload must go to cognition.
func (o *Orchestrator) direct(ctx context.Context, lg *log.Logger, payload string) bool {
	folded := textutil.Fold(payload)

	if shutdownPhrases[folded] {
		lg.Info("Shutdown requested")
		o.say(Farewell)
		o.Bus.Publish(bus.Shutdown, map[string]any{})
		return true
	}

	if folded == "volume" {
		o.say(tools.Speech(o.Tools.Execute(ctx, tools.SystemSpecialist, map[string]any{"comando": "volume"})))
		return true
	}

	words := strings.Fields(payload)
	verb := textutil.Fold(words[0])
	if !launchVerbs[verb] && !mediaVerbs[verb] {
		return false
	}
	for _, m := range compoundMarkers {
		if strings.Contains(" "+folded+" ", m) {
			lg.Debug("Compound request, leaving it to the planner")
			return false
		}
	}

	if launchVerbs[verb] {
		return o.launch(lg, words[1:])
	}

	o.say(PreAck)
	out := o.Tools.Execute(ctx, mediaSpecialist, map[string]any{"comando": payload})
	o.say(tools.Speech(out))
	return true
}

const mediaSpecialist = "spotify"

func (o *Orchestrator) launch(lg *log.Logger, rest []string) bool {
	for len(rest) > 0 && articles[textutil.Fold(rest[0])] {
		rest = rest[1:]
	}
	term := strings.Join(rest, " ")
	if term == "" {
		return false
	}

	m, ok := o.Apps.Resolve(term)
	if !ok {
		lg.Debug("No app matches", "term", term)
		return false
	}

	if !m.Exact {
		o.Attention.SetPending(attention.Pending{
			Kind:         attention.KindAppSuggestion,
			TargetName:   m.App.Name,
			TargetPath:   m.App.Command,
			OriginalTerm: term,
		})
		lg.Info("Asking about a close app", "term", term, "suggestion", m.App.Name, "score", m.Score)
		o.say(fmt.Sprintf("Não achei '%s', mas tenho '%s'. É esse que você quer?", term, m.App.Name))
		return true
	}

	if err := o.Apps.Launch(m.App); err != nil {
		lg.Warn("Launch failed", "app", m.App.Name, "err", err)
		o.say(fmt.Sprintf("Não consegui abrir %s, senhor.", m.App.Name))
		return true
	}
	o.say(fmt.Sprintf("Abrindo %s.", m.App.Name))
	return true
}
