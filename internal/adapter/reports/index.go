package reports

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
)

var _ domain.ReportIndex = (*Index)(nil)

// minPassageRunes merges paragraphs shorter than this into their successor.
const minPassageRunes = 200

type passage struct {
	source string
	text   string
	terms  map[string]int
}

// Index is an in-memory term index over report passages. It is built once
// and read concurrently.
type Index struct {
	passages []passage
	docFreq  map[string]int
	docs     []string
}

// Load reads every .md and .txt file in dir. A missing directory is
// reported as domain.ErrDataUnavailable.
func Load(dir string, log *slog.Logger) (*Index, error) {
	log = logger.OrNop(log)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.NewSubSystemError("reports", "reports.Load", domain.ErrDataUnavailable, dir)
	}

	idx := &Index{docFreq: make(map[string]int)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".md", ".txt":
		default:
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read report %s: %w", e.Name(), err)
		}
		idx.Add(e.Name(), string(data))
	}
	log.Info("report corpus loaded", "dir", dir, "documents", len(idx.docs), "passages", len(idx.passages))
	return idx, nil
}

// Add splits text into passages and indexes them under source.
func (idx *Index) Add(source, text string) {
	if idx.docFreq == nil {
		idx.docFreq = make(map[string]int)
	}
	idx.docs = append(idx.docs, source)
	for _, p := range splitPassages(text) {
		terms := termCounts(p)
		if len(terms) == 0 {
			continue
		}
		for t := range terms {
			idx.docFreq[t]++
		}
		idx.passages = append(idx.passages, passage{source: source, text: p, terms: terms})
	}
}

// Documents lists indexed report names in load order.
func (idx *Index) Documents() []string {
	return append([]string(nil), idx.docs...)
}

// Search ranks passages by tf-idf overlap with the query terms and returns
// at most limit passages with a positive score.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]domain.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qterms := termCounts(query)
	if len(qterms) == 0 || len(idx.passages) == 0 {
		return nil, nil
	}

	n := float64(len(idx.passages))
	var hits []domain.Passage
	for _, p := range idx.passages {
		var score float64
		for t := range qterms {
			tf, ok := p.terms[t]
			if !ok {
				continue
			}
			idf := math.Log(1 + n/float64(idx.docFreq[t]))
			score += (1 + math.Log(float64(tf))) * idf
		}
		if score > 0 {
			hits = append(hits, domain.Passage{Source: p.source, Text: p.text, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func splitPassages(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
		if len([]rune(cur.String())) >= minPassageRunes {
			flush()
		}
	}
	flush()
	return out
}

func termCounts(text string) map[string]int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	counts := make(map[string]int, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 || stopwords[w] {
			continue
		}
		counts[w]++
	}
	return counts
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "with": true,
	"that": true, "this": true, "from": true, "what": true, "how": true, "which": true,
	"will": true, "does": true, "did": true, "has": true, "have": true, "its": true,
	"into": true, "than": true, "then": true, "there": true, "their": true, "about": true,
	"der": true, "die": true, "das": true, "und": true, "wie": true, "les": true, "des": true,
}
