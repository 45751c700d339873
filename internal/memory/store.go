// Package memory is the assistant's long-term semantic store: user facts,
// music preferences and agent episodes, recalled by similarity.
package memory

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	log "log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Record types.
const (
	TipoFato     = "fato_usuario"
	TipoTrack    = "track"
	TipoEpisodio = "episodio_agente"
)

// Episode outcomes.
const (
	Success = "SUCCESS"
	Failure = "FAILURE"
)

const DefaultLimit = 3

// Track is one music preference.
type Track struct {
	Song     string
	Artist   string
	Tags     []string
	Explicit bool
	Extra    map[string]any
}

// Episode is one attempt by a specialist at an action.
type Episode struct {
	Agent   string
	Action  string
	Outcome string
	Emotion string
	Detail  string
}

// Store is the SQLite-backed record table. Calls are serialized. When the
// database cannot be opened every call quietly does nothing.
type Store struct {
	path     string
	embedder Embedder

	mu      sync.Mutex
	db      *sql.DB
	entropy *rand.Rand
}

// Open prepares a store at path. A database that fails to open is retried
// on the next call instead of failing here.
func Open(path string, embedder Embedder) (*Store, error) {
	if embedder == nil {
		embedder = NewHashEmbedder(defaultDims)
	}
	cached, err := newCachedEmbedder(embedder)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:     path,
		embedder: cached,
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.connect(); err != nil {
		log.Warn("Memory unavailable, continuing without it", "path", path, "err", err)
	}
	return s, nil
}

func (s *Store) connect() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	s.db = db
	return nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS records (
		id         TEXT PRIMARY KEY,
		tipo       TEXT NOT NULL,
		document   TEXT NOT NULL,
		metadata   TEXT,
		tags       TEXT NOT NULL DEFAULT '',
		embedding  BLOB,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_tipo ON records(tipo);
	`)
	return err
}

// conn returns the open database, reconnecting once if needed. Callers hold
// s.mu.
func (s *Store) conn() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	if err := s.connect(); err != nil {
		log.Debug("Memory reconnect failed", "err", err)
		return nil, ErrNotConnected
	}
	log.Info("Memory reconnected", "path", s.path)
	return s.db, nil
}

// Close releases the database and the embedding cache.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.embedder.(*cachedEmbedder); ok {
		c.Close()
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) newID(prefix string) string {
	return prefix + strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String())
}

// RememberFact stores a free-text fact about the user.
func (s *Store) RememberFact(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty fact")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID("fato_")
	meta := map[string]any{"tipo": TipoFato, "timestamp": time.Now().Unix()}
	return id, s.put(ctx, id, TipoFato, text, meta, nil)
}

// RememberTrack upserts a music preference. The id depends only on song and
// artist, so remembering the same pair twice keeps one record.
func (s *Store) RememberTrack(ctx context.Context, t Track) (string, error) {
	t.Song = strings.TrimSpace(t.Song)
	t.Artist = strings.TrimSpace(t.Artist)
	if t.Song == "" && t.Artist == "" {
		return "", fmt.Errorf("track needs a song or an artist")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := TrackID(t.Song, t.Artist)
	tags := lowerAll(t.Tags)

	meta := map[string]any{
		"tipo":      TipoTrack,
		"song":      t.Song,
		"artist":    t.Artist,
		"tags":      strings.Join(tags, ","),
		"explicit":  t.Explicit,
		"timestamp": time.Now().Unix(),
	}
	for k, v := range t.Extra {
		if _, taken := meta[k]; !taken {
			meta[k] = v
		}
	}

	doc := fmt.Sprintf("Música: %s - Artista: %s", t.Song, t.Artist)
	if len(tags) > 0 {
		doc += ". Tags: " + strings.Join(tags, ", ")
	}
	return id, s.put(ctx, id, TipoTrack, doc, meta, tags)
}

// RememberEpisode records how an agent fared at an action.
func (s *Store) RememberEpisode(ctx context.Context, e Episode) (string, error) {
	e.Outcome = strings.ToUpper(strings.TrimSpace(e.Outcome))
	if e.Outcome != Success && e.Outcome != Failure {
		return "", fmt.Errorf("invalid outcome %q", e.Outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID("ep_")
	meta := map[string]any{
		"tipo":      TipoEpisodio,
		"agent":     e.Agent,
		"action":    e.Action,
		"result":    e.Outcome,
		"emotion":   e.Emotion,
		"timestamp": time.Now().Unix(),
	}
	doc := fmt.Sprintf("Agente %s tentou '%s': %s.", e.Agent, e.Action, e.Outcome)
	if e.Emotion != "" {
		doc += " Emoção: " + e.Emotion + "."
	}
	if e.Detail != "" {
		doc += " " + e.Detail
	}
	tags := lowerAll([]string{e.Agent, e.Outcome})
	return id, s.put(ctx, id, TipoEpisodio, doc, meta, tags)
}

// Recall returns the documents most similar to query as "- doc" lines, at
// most limit of them. With tags, only records carrying one of them qualify.
// It returns "" when nothing matches.
func (s *Store) Recall(ctx context.Context, query string, limit int, tags ...string) string {
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.search(ctx, search{query: query, limit: limit, anyTags: lowerAll(tags)})
	if err != nil {
		log.Debug("Recall skipped", "err", err)
		return ""
	}
	if len(docs) == 0 {
		return ""
	}

	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = "- " + d
	}
	return strings.Join(lines, "\n")
}

// ConsultPastExperience returns what went wrong the last times agent tried
// something like action.
func (s *Store) ConsultPastExperience(ctx context.Context, agent, action string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.search(ctx, search{
		query:   action,
		limit:   DefaultLimit,
		tipo:    TipoEpisodio,
		allTags: lowerAll([]string{agent, Failure}),
	})
	if err != nil {
		log.Debug("Past experience skipped", "err", err)
		return nil
	}
	return docs
}

// Artists lists every distinct artist among remembered tracks.
func (s *Store) Artists(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil
	}
	rows, err := db.QueryContext(ctx, `SELECT metadata FROM records WHERE tipo = ? ORDER BY rowid`, TipoTrack)
	if err != nil {
		log.Warn("List artists failed", "err", err)
		return nil
	}
	defer rows.Close()

	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		var meta struct {
			Artist string `json:"artist"`
		}
		if json.Unmarshal([]byte(raw.String), &meta) != nil || meta.Artist == "" {
			continue
		}
		key := strings.ToLower(meta.Artist)
		if !seen[key] {
			seen[key] = true
			out = append(out, meta.Artist)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of records, optionally of one tipo.
func (s *Store) Count(ctx context.Context, tipo string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return 0
	}

	var n int
	if tipo == "" {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE tipo = ?`, tipo).Scan(&n)
	}
	if err != nil {
		log.Warn("Count failed", "err", err)
		return 0
	}
	return n
}

func (s *Store) put(ctx context.Context, id, tipo, doc string, meta map[string]any, tags []string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, doc)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO records (id, tipo, document, metadata, tags, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			tags = excluded.tags,
			embedding = excluded.embedding`,
		id, tipo, doc, string(metaJSON), encodeTags(tags), encodeVector(vec),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert %s: %w", id, err)
	}

	log.Debug("Remembered", "id", id, "tipo", tipo)
	return nil
}

type search struct {
	query   string
	limit   int
	tipo    string
	anyTags []string
	allTags []string
}

type scored struct {
	doc   string
	score float64
}

func (s *Store) search(ctx context.Context, q search) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	qvec, err := s.embedder.Embed(ctx, q.query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	stmt := `SELECT document, tags, embedding FROM records`
	var args []any
	if q.tipo != "" {
		stmt += ` WHERE tipo = ?`
		args = append(args, q.tipo)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var hits []scored
	for rows.Next() {
		var (
			doc, tags string
			blob      []byte
		)
		if err := rows.Scan(&doc, &tags, &blob); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if !matchTags(tags, q.anyTags, q.allTags) {
			continue
		}
		score := Cosine(qvec, decodeVector(blob))
		if score <= 0 {
			continue
		}
		hits = append(hits, scored{doc: doc, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > q.limit {
		hits = hits[:q.limit]
	}

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.doc
	}
	return out, nil
}

// TrackID builds the deterministic id tk_{song}_{artist}_{hash}.
func TrackID(song, artist string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(song)) + "|" + strings.ToLower(strings.TrimSpace(artist))))
	return fmt.Sprintf("tk_%s_%s_%s", norm(song), norm(artist), hex.EncodeToString(sum[:])[:4])
}

// norm keeps lowercase letters and digits, at most 20 of them.
func norm(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.ToLower(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(r)
		n++
		if n == 20 {
			break
		}
	}
	return b.String()
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// encodeTags stores tags as ",a,b," so a single tag is found with LIKE or
// a plain substring test.
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}

func matchTags(stored string, anyOf, allOf []string) bool {
	for _, t := range allOf {
		if !strings.Contains(stored, ","+t+",") {
			return false
		}
	}
	if len(anyOf) == 0 {
		return true
	}
	for _, t := range anyOf {
		if strings.Contains(stored, ","+t+",") {
			return true
		}
	}
	return false
}

func encodeVector(v Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) Vector {
	v := make(Vector, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
