// Package reflex cleans recognized speech before it reaches the rest of the
// assistant: it drops known transcription noise, applies learned corrections
// and fixes misheard artist names in music requests.
package reflex

import (
	"fmt"
	log "log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"jarvis/pkg/textutil"
)

const (
	CorrectionsFile = "reflexos.json"
	IgnoreFile      = "ruido.json"

	// minLength is the rune count under which non-greeting text is noise.
	minLength = 4
	memoSize  = 512
)

type Origin string

const (
	OriginManual Origin = "manual"
	OriginFuzzy  Origin = "fuzzy"
	OriginRaw    Origin = "raw"
	OriginError  Origin = "error"
)

// Result is one analyzed utterance.
type Result struct {
	Text    string
	Raw     string
	Blocked bool

	// DetectedTerm is the vocabulary entry proposed for OriginalTerm.
	DetectedTerm string
	OriginalTerm string
	Confidence   float64
	Origin       Origin
}

// Layer holds the manual map, the ignore list and the fuzzy vocabulary.
// It is safe for concurrent use.
type Layer struct {
	correctionsPath string
	ignorePath      string
	vocabulary      func() []string

	mu          sync.RWMutex
	corrections map[string]string
	ignore      []string
	pattern     *regexp.Regexp

	memo      *lru.Cache[string, fuzzyHit]
	memoVocab int

	// writeMu serializes read-modify-write cycles on the files.
	writeMu sync.Mutex
}

// New loads the reflex files from dir. vocabulary, when not nil, supplies
// extra artist names on top of the bundled seed list.
func New(dir string, vocabulary func() []string) (*Layer, error) {
	memo, err := lru.New[string, fuzzyHit](memoSize)
	if err != nil {
		return nil, fmt.Errorf("create memo: %w", err)
	}

	l := &Layer{
		correctionsPath: filepath.Join(dir, CorrectionsFile),
		ignorePath:      filepath.Join(dir, IgnoreFile),
		vocabulary:      vocabulary,
		corrections:     map[string]string{},
		memo:            memo,
	}
	l.Reload()
	return l, nil
}

// Reload re-reads both files and recompiles the substitution pattern. A file
// that cannot be parsed is logged and treated as empty.
func (l *Layer) Reload() {
	corrections, err := readCorrections(l.correctionsPath)
	if err != nil {
		log.Warn("Reflex map unreadable, corrections disabled", "err", err)
		corrections = map[string]string{}
	}

	ignore, err := readIgnore(l.ignorePath)
	if err != nil {
		log.Warn("Ignore list unreadable, noise filter disabled", "err", err)
		ignore = nil
	}

	pattern, err := compile(corrections)
	if err != nil {
		log.Warn("Reflex pattern failed to compile", "err", err)
		pattern = nil
	}

	l.mu.Lock()
	l.corrections = corrections
	l.ignore = ignore
	l.pattern = pattern
	l.mu.Unlock()

	l.memo.Purge()

	log.Debug("Reflex loaded", "corrections", len(corrections), "ignore", len(ignore))
}

// Analyze runs the full pipeline on one utterance.
func (l *Layer) Analyze(text string) Result {
	raw := text
	lower := strings.ToLower(strings.TrimSpace(text))

	l.mu.RLock()
	ignore := l.ignore
	corrections := l.corrections
	pattern := l.pattern
	l.mu.RUnlock()

	for _, phrase := range ignore {
		if strings.Contains(lower, phrase) {
			return Result{Raw: raw, Blocked: true}
		}
	}

	if utf8.RuneCountInString(lower) < minLength {
		_, known := corrections[lower]
		greeting := greetings[textutil.Fold(textutil.StripPunct(lower))]
		if !known && !greeting {
			return Result{Raw: raw, Blocked: true}
		}
	}

	if pattern != nil {
		if out, ok := substitute(pattern, corrections, text); ok {
			return Result{Text: out, Raw: raw, Confidence: 1.0, Origin: OriginManual}
		}
	}

	return l.musical(text)
}

// compile builds one case-insensitive alternation of every key, longest first
// so that overlapping keys prefer the most specific one.
func compile(corrections map[string]string) (*regexp.Regexp, error) {
	if len(corrections) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(corrections))
	for k := range corrections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})

	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.Compile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

// substitute replaces every whole-word match in one pass. Boundaries are
// checked on runes because RE2's \b only knows ASCII.
func substitute(pattern *regexp.Regexp, corrections map[string]string, text string) (string, bool) {
	locs := pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, false
	}

	var (
		b        strings.Builder
		last     int
		replaced bool
	)
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if !wholeWord(text, start, end) {
			continue
		}
		right, ok := corrections[strings.ToLower(text[start:end])]
		if !ok {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(right)
		last = end
		replaced = true
	}
	if !replaced {
		return text, false
	}
	b.WriteString(text[last:])
	return b.String(), true
}

// wholeWord reports whether text[start:end] is not glued to surrounding word
// runes. Edges of the match that are not word runes themselves need no check.
func wholeWord(text string, start, end int) bool {
	if start > 0 {
		first, _ := utf8.DecodeRuneInString(text[start:])
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if textutil.IsWordRune(first) && textutil.IsWordRune(prev) {
			return false
		}
	}
	if end < len(text) {
		lastRune, _ := utf8.DecodeLastRuneInString(text[:end])
		next, _ := utf8.DecodeRuneInString(text[end:])
		if textutil.IsWordRune(lastRune) && textutil.IsWordRune(next) {
			return false
		}
	}
	return true
}
