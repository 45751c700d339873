package specialists

import (
	"context"
	"fmt"
	log "log/slog"
	"net/url"
	"strings"

	"jarvis/internal/memory"
	"jarvis/internal/sysexec"
	"jarvis/internal/tools"
	"jarvis/pkg/textutil"
)

func init() {
	tools.Provide("spotify", func(d tools.Deps) (tools.Specialist, error) {
		return &Spotify{run: sysexec.Exec{}, memory: d.Memory}, nil
	})
}

var (
	playVerbs = wordSet("tocar", "toque", "toca", "tocando", "ouvir", "escutar", "escuta",
		"bota", "botar", "coloca", "colocar", "coloque", "poe", "play", "quero")
	mediaFiller = wordSet("o", "a", "os", "as", "um", "uma", "musica", "musicas", "som", "de", "do", "da", "no", "spotify")

	mediaActions = map[string]string{
		"pausar": "pause", "pausa": "pause", "pause": "pause", "parar": "pause", "para": "pause",
		"continuar": "play", "continua": "play", "retomar": "play", "despausar": "play",
		"proxima": "next", "pular": "next", "pula": "next", "avancar": "next", "next": "next",
		"anterior": "previous", "voltar": "previous", "volta": "previous",
	}
	actionReplies = map[string]string{
		"pause":    "Pausado.",
		"play":     "Continuando.",
		"next":     "Próxima faixa.",
		"previous": "Faixa anterior.",
	}
)

// Spotify searches the desktop client and drives playback through MPRIS.
type Spotify struct {
	run    sysexec.Runner
	memory *memory.Store
}

func (s *Spotify) Name() string { return "spotify" }

func (s *Spotify) Triggers() []string {
	return []string{"musica", "música", "tocar", "media", "player"}
}

func (s *Spotify) Execute(ctx context.Context, command string, _ map[string]any) (string, error) {
	words := strings.Fields(textutil.Fold(textutil.StripPunct(command)))
	if len(words) == 0 {
		return "O que devo tocar?", nil
	}

	if action, ok := mediaActions[words[0]]; ok && len(words) <= 2 {
		if _, err := s.run.Run(ctx, "playerctl", "--player=spotify", action); err != nil {
			s.failed(ctx, command, err)
			return "", err
		}
		return actionReplies[action], nil
	}

	query := mediaQuery(command)
	if query == "" {
		return "O que devo tocar?", nil
	}

	if err := s.run.Start("xdg-open", "spotify:search:"+url.PathEscape(query)); err != nil {
		s.failed(ctx, command, err)
		return "", err
	}
	return fmt.Sprintf("Tocando %s no Spotify.", query), nil
}

// failed leaves an episode behind so later attempts can be checked against
// it.
func (s *Spotify) failed(ctx context.Context, command string, err error) {
	if s.memory == nil {
		return
	}
	if _, rerr := s.memory.RememberEpisode(ctx, memory.Episode{
		Agent:   s.Name(),
		Action:  command,
		Outcome: memory.Failure,
		Emotion: "frustrado",
		Detail:  err.Error(),
	}); rerr != nil {
		log.Debug("Episode not stored", "err", rerr)
	}
}

// mediaQuery drops the play verb and filler, keeping the user's casing.
func mediaQuery(command string) string {
	words := strings.Fields(textutil.StripPunct(command))
	i := 0
	for i < len(words) {
		w := textutil.Fold(words[i])
		if !playVerbs[w] && !mediaFiller[w] {
			break
		}
		i++
	}
	return strings.Join(words[i:], " ")
}
