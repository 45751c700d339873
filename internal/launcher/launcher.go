// Package launcher resolves spoken application names to commands and
// starts or stops them.
package launcher

import (
	"context"
	"fmt"
	log "log/slog"
	"path/filepath"
	"sort"
	"strings"

	"jarvis/internal/sysexec"
	"jarvis/pkg/textutil"
)

// SuggestCutoff is the similarity above which a near miss is offered back
// to the user as a question.
const SuggestCutoff = 0.7

// App is one launchable program.
type App struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Aliases []string `yaml:"aliases"`
}

// DefaultApps is used when the config file lists none.
var DefaultApps = []App{
	{Name: "Bloco de Notas", Command: "gnome-text-editor", Aliases: []string{"notepad", "editor de texto"}},
	{Name: "Calculadora", Command: "gnome-calculator", Aliases: []string{"calculator"}},
	{Name: "Navegador", Command: "firefox", Aliases: []string{"browser", "firefox", "internet"}},
	{Name: "Chrome", Command: "google-chrome", Aliases: []string{"google chrome"}},
	{Name: "Terminal", Command: "gnome-terminal", Aliases: []string{"cmd", "console"}},
	{Name: "Visual Studio Code", Command: "code", Aliases: []string{"vscode", "vs code"}},
	{Name: "Explorador de Arquivos", Command: "nautilus", Aliases: []string{"explorer", "arquivos"}},
	{Name: "Spotify", Command: "spotify"},
	{Name: "Discord", Command: "discord"},
}

// Match is the outcome of Resolve.
type Match struct {
	App   App
	Exact bool
	Score float64
}

type Launcher struct {
	apps []App
	run  sysexec.Runner
}

func New(apps []App, run sysexec.Runner) *Launcher {
	if len(apps) == 0 {
		apps = DefaultApps
	}
	if run == nil {
		run = sysexec.Exec{}
	}
	return &Launcher{apps: apps, run: run}
}

// Resolve finds the app called term. An exact name or alias gives an exact
// match; otherwise the closest name scoring at least SuggestCutoff is
// returned as a suggestion.
func (l *Launcher) Resolve(term string) (Match, bool) {
	key := textutil.Fold(textutil.StripPunct(term))
	if key == "" {
		return Match{}, false
	}

	for _, app := range l.apps {
		for _, name := range append([]string{app.Name}, app.Aliases...) {
			if textutil.Fold(name) == key {
				return Match{App: app, Exact: true, Score: 1}, true
			}
		}
	}

	var best Match
	for _, app := range l.apps {
		for _, name := range append([]string{app.Name}, app.Aliases...) {
			if score := textutil.Similarity(key, textutil.Fold(name)); score > best.Score {
				best = Match{App: app, Score: score}
			}
		}
	}
	if best.Score < SuggestCutoff {
		return Match{}, false
	}
	return best, true
}

// Launch starts app detached.
func (l *Launcher) Launch(app App) error {
	fields := strings.Fields(app.Command)
	if len(fields) == 0 {
		return fmt.Errorf("app %q has no command", app.Name)
	}
	log.Info("Launching", "app", app.Name, "command", app.Command)
	return l.run.Start(fields[0], fields[1:]...)
}

// Close stops every process started from app's binary.
func (l *Launcher) Close(ctx context.Context, app App) error {
	fields := strings.Fields(app.Command)
	if len(fields) == 0 {
		return fmt.Errorf("app %q has no command", app.Name)
	}
	_, err := l.run.Run(ctx, "pkill", "-f", filepath.Base(fields[0]))
	return err
}

// Names lists the known app names, sorted.
func (l *Launcher) Names() []string {
	out := make([]string, len(l.apps))
	for i, a := range l.apps {
		out[i] = a.Name
	}
	sort.Strings(out)
	return out
}
