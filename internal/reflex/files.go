package reflex

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
)

// correctionsFile is the on-disk shape of the manual map.
type correctionsFile struct {
	PhoneticCorrections map[string]string `json:"phonetic_corrections"`
}

// ignoreFile is the on-disk shape of the ignore list.
type ignoreFile struct {
	RuidoIgnorado []string `json:"ruido_ignorado"`
}

func readCorrections(path string) (map[string]string, error) {
	var f correctionsFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(f.PhoneticCorrections))
	for wrong, right := range f.PhoneticCorrections {
		wrong = strings.ToLower(strings.TrimSpace(wrong))
		if wrong == "" {
			continue
		}
		out[wrong] = right
	}
	return out, nil
}

func readIgnore(path string) ([]string, error) {
	var f ignoreFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(f.RuidoIgnorado))
	for _, p := range f.RuidoIgnorado {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSONAtomic writes v next to path and renames it into place, so readers
// never observe a half-written file.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// AddCorrection stores wrong -> right in the manual map and reloads.
func (l *Layer) AddCorrection(wrong, right string) error {
	wrong = strings.ToLower(strings.TrimSpace(wrong))
	right = strings.TrimSpace(right)
	if wrong == "" || right == "" {
		return ErrEmptyCorrection
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	current, err := readCorrections(l.correctionsPath)
	if err != nil {
		// Start over from an empty map.
		log.Warn("Overwriting unreadable reflex map", "err", err)
		current = map[string]string{}
	}
	current[wrong] = right

	if err := writeJSONAtomic(l.correctionsPath, correctionsFile{PhoneticCorrections: current}); err != nil {
		return fmt.Errorf("save corrections: %w", err)
	}
	log.Info("Learned correction", "wrong", wrong, "right", right)

	l.Reload()
	return nil
}

// AddIgnore appends phrase to the noise list and reloads.
func (l *Layer) AddIgnore(phrase string) error {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return ErrEmptyPhrase
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	current, err := readIgnore(l.ignorePath)
	if err != nil {
		log.Warn("Overwriting unreadable ignore list", "err", err)
		current = nil
	}
	for _, p := range current {
		if p == phrase {
			return nil
		}
	}
	current = append(current, phrase)

	if err := writeJSONAtomic(l.ignorePath, ignoreFile{RuidoIgnorado: current}); err != nil {
		return fmt.Errorf("save ignore list: %w", err)
	}
	log.Info("Ignoring phrase", "phrase", phrase)

	l.Reload()
	return nil
}
