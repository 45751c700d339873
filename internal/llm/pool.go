package llm

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// KeyEnv is the primary cloud key variable; KeyEnv_1 .. KeyEnv_19 add more.
const (
	KeyEnv      = "GROQ_API_KEY"
	maxKeyIndex = 19
)

// KeysFromEnv collects the primary key and its numbered siblings.
func KeysFromEnv(getenv func(string) string) []string {
	keys := []string{getenv(KeyEnv)}
	for i := 1; i <= maxKeyIndex; i++ {
		keys = append(keys, getenv(fmt.Sprintf("%s_%d", KeyEnv, i)))
	}
	return keys
}

// KeyPool hands out cloud keys round-robin.
type KeyPool struct {
	mu   sync.Mutex
	keys []string
	cur  int
}

// NewKeyPool drops blank and duplicate keys and shuffles the rest once.
func NewKeyPool(keys []string) *KeyPool {
	seen := map[string]bool{}
	var clean []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		clean = append(clean, k)
	}

	rand.Shuffle(len(clean), func(i, j int) { clean[i], clean[j] = clean[j], clean[i] })
	return &KeyPool{keys: clean}
}

func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Current returns the selected key.
func (p *KeyPool) Current() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", ErrNoKeys
	}
	return p.keys[p.cur], nil
}

// Rotate moves to the next key, wrapping around.
func (p *KeyPool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) > 0 {
		p.cur = (p.cur + 1) % len(p.keys)
	}
}
