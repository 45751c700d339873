package reflex

import (
	"fmt"
	log "log/slog"
	"strings"
	"unicode/utf8"

	"jarvis/pkg/textutil"
)

const (
	// suggestCutoff surfaces a candidate; applyCutoff rewrites the sentence.
	suggestCutoff = 0.4
	applyCutoff   = 0.75

	// Candidates whose length differs by more than maxLengthGap need at
	// least strongScore to be considered at all.
	maxLengthGap = 4
	strongScore  = 0.8
)

type fuzzyHit struct {
	candidate string
	score     float64
}

var (
	foldedVerbs  = foldSet(musicVerbs)
	foldedFiller = foldKeys(leadingFiller)
)

// musical looks for a music request and corrects the requested name against
// the vocabulary. A panic anywhere in here must not reach the caller.
func (l *Layer) musical(text string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Fuzzy step failed", "err", fmt.Sprint(r))
			res = Result{Text: text, Raw: text, Origin: OriginError}
		}
	}()

	words := strings.Fields(text)
	verb := -1
	for i, w := range words {
		if foldedVerbs[textutil.Fold(textutil.StripPunct(w))] {
			verb = i
			break
		}
	}
	if verb < 0 {
		return Result{Text: text, Raw: text, Origin: OriginRaw}
	}

	start := verb + 1
	for start < len(words) && foldedFiller[textutil.Fold(textutil.StripPunct(words[start]))] {
		start++
	}

	term := textutil.StripPunct(strings.Join(words[start:], " "))
	if utf8.RuneCountInString(term) < 2 {
		return Result{Text: text, Raw: text, OriginalTerm: term, Origin: OriginRaw}
	}

	res = Result{Text: text, Raw: text, OriginalTerm: term, Origin: OriginFuzzy}

	hit, ok := l.closest(term)
	if !ok {
		return res
	}
	res.DetectedTerm = hit.candidate
	res.Confidence = hit.score

	if hit.score >= applyCutoff && textutil.Fold(hit.candidate) != textutil.Fold(term) {
		head := strings.Join(words[:start], " ")
		res.Text = strings.TrimSpace(head + " " + hit.candidate)
		log.Debug("Fuzzy correction", "from", term, "to", hit.candidate, "score", hit.score)
	}
	return res
}

// closest returns the best vocabulary entry for term, memoized per folded
// term. The memo is dropped whenever the vocabulary size changes.
func (l *Layer) closest(term string) (fuzzyHit, bool) {
	vocab := l.vocab()

	l.mu.Lock()
	if len(vocab) != l.memoVocab {
		l.memo.Purge()
		l.memoVocab = len(vocab)
	}
	l.mu.Unlock()

	key := textutil.Fold(term)
	if hit, ok := l.memo.Get(key); ok {
		return hit, hit.candidate != ""
	}

	hit := best(key, vocab)
	l.memo.Add(key, hit)
	return hit, hit.candidate != ""
}

func best(folded string, vocab []string) fuzzyHit {
	termLen := utf8.RuneCountInString(folded)

	var out fuzzyHit
	for _, cand := range vocab {
		fc := textutil.Fold(cand)
		score := textutil.Similarity(folded, fc)
		if score < suggestCutoff {
			continue
		}
		gap := utf8.RuneCountInString(fc) - termLen
		if gap < 0 {
			gap = -gap
		}
		if gap > maxLengthGap && score < strongScore {
			continue
		}
		if score > out.score {
			out = fuzzyHit{candidate: cand, score: score}
		}
	}
	return out
}

func (l *Layer) vocab() []string {
	if l.vocabulary == nil {
		return seedArtists
	}
	extra := l.vocabulary()

	seen := make(map[string]bool, len(seedArtists)+len(extra))
	out := make([]string, 0, len(seedArtists)+len(extra))
	for _, name := range append(append([]string{}, seedArtists...), extra...) {
		k := textutil.Fold(strings.TrimSpace(name))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, name)
	}
	return out
}

func foldSet(words []string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[textutil.Fold(w)] = true
	}
	return out
}

func foldKeys(words map[string]bool) map[string]bool {
	out := make(map[string]bool, len(words))
	for w := range words {
		out[textutil.Fold(w)] = true
	}
	return out
}
