// Package chunker implements the Chunker (C2): structure-aware hierarchical
// splitting of markdown text into parent and child chunks.
//
// Grounded on the teacher's internal/service/chunker.go (paragraph-merge,
// sentence-split, word-split cascade shape) generalized one level deeper to
// emit a parent/child hierarchy per spec.md §4.2, with the separator-priority
// list the spec mandates. No library in the retrieval pack performs
// structure-aware text splitting (LangChain's splitters belong to
// original_source, a Python-only dependency) — kept stdlib, justified in
// DESIGN.md.
package chunker

import (
	"regexp"
	"strings"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/model"
)

// separatorPriority is the cascade spec.md §4.2 mandates, tried in order
// until a split produces pieces within budget.
var separatorPriority = []string{"\n\n\n", "\n\n", "\n", ".", " ", ""}

// Config holds the parent/child size budgets. Parent size must exceed child
// size and overlap must be smaller than its own size, for both tiers
// (an invariant of §4.2).
type Config struct {
	ParentSize    int
	ParentOverlap int
	ChildSize     int
	ChildOverlap  int
}

// DefaultConfig returns spec.md §4.2's stated defaults.
func DefaultConfig() Config {
	return Config{ParentSize: 2000, ParentOverlap: 200, ChildSize: 400, ChildOverlap: 50}
}

func (c Config) validate() error {
	if c.ParentSize <= c.ChildSize {
		return apperr.New(apperr.KindValidation, "parent_size must exceed child_size")
	}
	if c.ParentOverlap >= c.ParentSize {
		return apperr.New(apperr.KindValidation, "parent overlap must be smaller than parent size")
	}
	if c.ChildOverlap >= c.ChildSize {
		return apperr.New(apperr.KindValidation, "child overlap must be smaller than child size")
	}
	return nil
}

// Result is the chunk(markdown) contract's output.
type Result struct {
	Parents []model.ParentChunk
	Children []model.ChildChunk
	Edges   []model.ChunkEdge
}

// Chunker splits markdown text into a parent/child hierarchy, or — in flat
// mode — a single child-size stream with no parents or edges.
type Chunker struct {
	cfg Config
}

// New builds a Chunker. A zero Config is replaced by DefaultConfig.
func New(cfg Config) (*Chunker, error) {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

var headerRe = regexp.MustCompile(`(?m)^(#{1,3})\s+(.*)$`)

// Chunk implements the hierarchical contract: split by header hierarchy into
// parent candidates, re-split oversized parents, then split every parent
// into children. Header metadata propagates from parent to child (§4.2).
func (c *Chunker) Chunk(markdown string) (*Result, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, apperr.New(apperr.KindValidation, "markdown text is empty")
	}

	sections := splitByHeaders(markdown)

	var result Result
	for _, sec := range sections {
		parentPieces := splitBySeparators(sec.content, c.cfg.ParentSize, c.cfg.ParentOverlap)
		for _, piece := range parentPieces {
			content := strings.TrimSpace(piece)
			if content == "" {
				continue
			}
			parentIdx := len(result.Parents)
			result.Parents = append(result.Parents, model.ParentChunk{
				ChunkIndex: parentIdx,
				Content:    content,
				Header:     sec.header,
				ChunkType:  "parent",
			})

			for _, childContent := range splitBySeparators(content, c.cfg.ChildSize, c.cfg.ChildOverlap) {
				childContent = strings.TrimSpace(childContent)
				if childContent == "" {
					continue
				}
				childIdx := len(result.Children)
				result.Children = append(result.Children, model.ChildChunk{
					ChunkIndex: childIdx,
					Content:    childContent,
					Header:     sec.header,
					ChunkType:  "child",
				})
				result.Edges = append(result.Edges, model.ChunkEdge{ChildIndex: childIdx, ParentIndex: parentIdx})
			}
		}
	}

	if len(result.Children) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no content after splitting")
	}
	return &result, nil
}

// ChunkFlat implements the flat-mode contract: a single child-size stream,
// no parents, no edges. The ingest coordinator picks this mode for short
// documents per per-request configuration.
func (c *Chunker) ChunkFlat(markdown string) ([]model.ChildChunk, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, apperr.New(apperr.KindValidation, "markdown text is empty")
	}

	var children []model.ChildChunk
	for _, piece := range splitBySeparators(markdown, c.cfg.ChildSize, c.cfg.ChildOverlap) {
		content := strings.TrimSpace(piece)
		if content == "" {
			continue
		}
		children = append(children, model.ChildChunk{
			ChunkIndex: len(children),
			Content:    content,
			ChunkType:  "child",
		})
	}
	if len(children) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no content after splitting")
	}
	return children, nil
}

type headerSection struct {
	header  string
	content string
}

// splitByHeaders splits markdown along header levels 1-3, keeping each
// header line as part of its section's content (spec: "preserving headers in
// payload").
func splitByHeaders(markdown string) []headerSection {
	matches := headerRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(matches) == 0 {
		return []headerSection{{content: markdown}}
	}

	var sections []headerSection
	if matches[0][0] > 0 {
		sections = append(sections, headerSection{content: markdown[:matches[0][0]]})
	}

	for i, m := range matches {
		start := m[0]
		end := len(markdown)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		header := strings.TrimSpace(markdown[m[4]:m[5]])
		sections = append(sections, headerSection{header: header, content: markdown[start:end]})
	}
	return sections
}

// splitBySeparators recursively applies the separator cascade until every
// piece is within budget, then stitches in overlap as a prefix of each piece
// after the first (mirrors the teacher's applyOverlap, generalized to
// char-based budgets and the spec's separator list).
func splitBySeparators(text string, size, overlap int) []string {
	pieces := splitRecursive(text, separatorPriority, size)
	return applyOverlap(pieces, overlap)
}

func splitRecursive(text string, separators []string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(separators) == 0 {
		return splitByRuneCount(text, size)
	}

	sep := separators[0]
	rest := separators[1:]

	var parts []string
	if sep == "" {
		parts = splitByRuneCount(text, size)
	} else {
		raw := strings.Split(text, sep)
		for i, p := range raw {
			if i < len(raw)-1 {
				parts = append(parts, p+sep)
			} else if p != "" {
				parts = append(parts, p)
			}
		}
	}

	var out []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}
	for _, p := range parts {
		if len(p) > size {
			flush()
			out = append(out, splitRecursive(p, rest, size)...)
			continue
		}
		if current.Len()+len(p) > size {
			flush()
		}
		current.WriteString(p)
	}
	flush()
	return out
}

func splitByRuneCount(text string, size int) []string {
	runes := []rune(text)
	if size <= 0 {
		return []string{text}
	}
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func applyOverlap(pieces []string, overlap int) []string {
	if len(pieces) <= 1 || overlap <= 0 {
		return pieces
	}
	out := make([]string, len(pieces))
	out[0] = pieces[0]
	for i := 1; i < len(pieces); i++ {
		prev := []rune(pieces[i-1])
		n := overlap
		if n > len(prev) {
			n = len(prev)
		}
		tail := string(prev[len(prev)-n:])
		out[i] = tail + pieces[i]
	}
	return out
}
