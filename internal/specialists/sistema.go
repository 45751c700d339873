// Package specialists holds the built-in domain agents. Each one registers a
// factory with the tool registry from init.
package specialists

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"jarvis/internal/launcher"
	"jarvis/internal/tools"
	"jarvis/pkg/textutil"
)

func init() {
	tools.Provide("sistema", func(d tools.Deps) (tools.Specialist, error) {
		if d.Launcher == nil {
			return nil, errors.New("no launcher")
		}
		return &Sistema{launcher: d.Launcher, volume: d.Volume}, nil
	})
}

const volumeStep = 10

var (
	openVerbs  = wordSet("abrir", "abra", "abre", "iniciar", "inicie", "inicia", "executar", "execute", "rodar", "open", "launch")
	closeVerbs = wordSet("fechar", "feche", "fecha", "encerrar", "encerre", "matar", "close")
	articles   = wordSet("o", "a", "os", "as", "um", "uma", "programa", "app", "aplicativo")

	upWords   = wordSet("aumentar", "aumenta", "aumente", "subir", "sobe", "suba", "mais", "up")
	downWords = wordSet("diminuir", "diminui", "diminua", "abaixar", "abaixa", "abaixe", "baixar", "menos", "down")
	muteWords = wordSet("mudo", "mute", "silencio", "silenciar")

	numberRe = regexp.MustCompile(`\d+`)
)

// Sistema opens and closes programs and controls the master volume.
type Sistema struct {
	launcher *launcher.Launcher
	volume   tools.VolumeControl
}

func (s *Sistema) Name() string { return "sistema" }

func (s *Sistema) Triggers() []string {
	return []string{"system", "programa", "volume"}
}

func (s *Sistema) Execute(ctx context.Context, command string, _ map[string]any) (string, error) {
	words := strings.Fields(textutil.Fold(textutil.StripPunct(command)))
	if len(words) == 0 {
		return "Nenhum comando recebido.", nil
	}

	for _, w := range words {
		if w == "volume" {
			return s.handleVolume(ctx, words)
		}
	}

	switch {
	case openVerbs[words[0]]:
		return s.open(stripArticles(words[1:]))
	case closeVerbs[words[0]]:
		return s.close(ctx, stripArticles(words[1:]))
	default:
		// A bare name means "open it".
		return s.open(stripArticles(words))
	}
}

func (s *Sistema) open(term string) (string, error) {
	if term == "" {
		return "Qual programa devo abrir?", nil
	}
	m, ok := s.launcher.Resolve(term)
	if !ok {
		return fmt.Sprintf("Não encontrei o programa '%s'.", term), nil
	}
	if !m.Exact {
		return fmt.Sprintf("Não encontrei '%s'. Você quis dizer '%s'?", term, m.App.Name), nil
	}
	if err := s.launcher.Launch(m.App); err != nil {
		return "", err
	}
	return fmt.Sprintf("Abrindo %s.", m.App.Name), nil
}

func (s *Sistema) close(ctx context.Context, term string) (string, error) {
	if term == "" {
		return "Qual programa devo fechar?", nil
	}
	m, ok := s.launcher.Resolve(term)
	if !ok || !m.Exact {
		return fmt.Sprintf("Não encontrei o programa '%s'.", term), nil
	}
	if err := s.launcher.Close(ctx, m.App); err != nil {
		return "", err
	}
	return fmt.Sprintf("Fechando %s.", m.App.Name), nil
}

func (s *Sistema) handleVolume(ctx context.Context, words []string) (string, error) {
	if s.volume == nil {
		return "Não tenho controle de volume nesta máquina.", nil
	}

	joined := strings.Join(words, " ")
	if n := numberRe.FindString(joined); n != "" {
		pct, _ := strconv.Atoi(n)
		if err := s.volume.SetVolume(ctx, pct); err != nil {
			return "", err
		}
		return fmt.Sprintf("Volume em %d%%.", pct), nil
	}

	for _, w := range words {
		var (
			v   int
			err error
		)
		switch {
		case upWords[w]:
			v, err = s.volume.Adjust(ctx, volumeStep)
		case downWords[w]:
			v, err = s.volume.Adjust(ctx, -volumeStep)
		case muteWords[w]:
			err = s.volume.SetVolume(ctx, 0)
		default:
			continue
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Volume em %d%%.", v), nil
	}

	v, err := s.volume.Volume(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("O volume está em %d%%.", v), nil
}

func stripArticles(words []string) string {
	for len(words) > 0 && articles[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func wordSet(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}
