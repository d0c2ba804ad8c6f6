// Package render turns raw assistant text into renderable content blocks.
//
// Parse is pure: it keeps no state between calls and can be run on every
// streamed snapshot of a message. Expansion state for long paragraphs is owned
// by the caller and passed in as a lookup keyed by block position.
package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/consultant/internal/domain"
)

// TruncateThreshold is the line length (in characters) above which a line
// becomes a truncatable paragraph.
const TruncateThreshold = 280

// Deeper headings render at this level.
const maxHeadingLevel = 3

const (
	cardOpen  = "[PRODUCT_CARD]"
	cardClose = "[/PRODUCT_CARD]"
)

var (
	bulletRe      = regexp.MustCompile(`^[*-]\s+(.+)$`)
	numberedRe    = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	headingRe     = regexp.MustCompile(`^(#+)\s+(.+)$`)
	boilerplateRe = regexp.MustCompile(`(?i)^(in summary|here['’]s a strategy|conclusion)`)
	emphasisRe    = regexp.MustCompile(`\*+`)
)

// Expansion reports whether the truncatable block at position index should
// be shown expanded. A nil Expansion means nothing is expanded.
type Expansion func(index int) bool

// Flags returns an Expansion backed by a copy of m.
func Flags(m map[int]bool) Expansion {
	cp := make(map[int]bool, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return func(index int) bool { return cp[index] }
}

// Parse converts raw assistant text into an ordered list of blocks.
func Parse(raw string, expanded Expansion) []domain.Block {
	p := &parser{expanded: expanded}
	lines := normalize(raw)

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if line == "" {
			p.flush()
			continue
		}

		if line == cardOpen {
			p.flush()
			card := &domain.ProductCard{}
			for i++; i < len(lines) && lines[i] != cardClose; i++ {
				applyCardField(card, lines[i])
			}
			p.emit(domain.Block{Kind: domain.BlockProductCard, Card: card})
			continue
		}

		if line == cardClose {
			// Closer without an opener.
			p.flush()
			continue
		}

		if m := bulletRe.FindStringSubmatch(line); m != nil {
			p.addItem(domain.BlockBulletList, m[1])
			continue
		}

		if m := numberedRe.FindStringSubmatch(line); m != nil {
			p.addItem(domain.BlockNumberedList, m[1])
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			p.flush()
			if text := stripMarkup(m[2]); text != "" {
				p.emit(domain.Block{Kind: domain.BlockHeading, Level: min(len(m[1]), maxHeadingLevel), Text: text})
			}
			continue
		}

		if utf8.RuneCountInString(line) > TruncateThreshold {
			p.flush()
			p.emit(domain.Block{
				Kind:     domain.BlockTruncatable,
				Text:     stripMarkup(line),
				Expanded: p.isExpanded(len(p.blocks)),
			})
			continue
		}

		if p.open != domain.BlockParagraph {
			p.flush()
			p.open = domain.BlockParagraph
		}
		p.para = append(p.para, line)
	}

	p.flush()
	return p.blocks
}

// normalize splits raw into whitespace-collapsed lines, dropping boilerplate
// openers and case-insensitive repeats of the previous kept line.
func normalize(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if boilerplateRe.MatchString(line) {
			continue
		}
		if len(out) > 0 && strings.EqualFold(line, out[len(out)-1]) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// stripMarkup removes emphasis markers, keeping the enclosed text.
func stripMarkup(s string) string {
	s = emphasisRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func applyCardField(card *domain.ProductCard, line string) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	value = strings.TrimSpace(value)

	switch strings.ToLower(strings.TrimSpace(key)) {
	case "id":
		card.ID = value
	case "name":
		card.Name = value
	case "price":
		card.Price = value
	case "image":
		card.ImageURL = value
	case "reason":
		card.Reason = value
	}
}

type parser struct {
	expanded Expansion
	blocks   []domain.Block

	// open is "", BlockParagraph, BlockBulletList or BlockNumberedList.
	open  domain.BlockKind
	para  []string
	items []string
}

func (p *parser) isExpanded(index int) bool {
	return p.expanded != nil && p.expanded(index)
}

func (p *parser) emit(b domain.Block) {
	p.blocks = append(p.blocks, b)
}

func (p *parser) addItem(kind domain.BlockKind, text string) {
	if p.open != kind {
		p.flush()
		p.open = kind
	}
	if item := stripMarkup(text); item != "" {
		p.items = append(p.items, item)
	}
}

func (p *parser) flush() {
	switch p.open {
	case domain.BlockParagraph:
		if text := stripMarkup(strings.Join(p.para, " ")); text != "" {
			p.emit(domain.Block{Kind: domain.BlockParagraph, Text: text})
		}
	case domain.BlockBulletList, domain.BlockNumberedList:
		if len(p.items) > 0 {
			p.emit(domain.Block{Kind: p.open, Items: p.items})
		}
	}
	p.open = ""
	p.para = nil
	p.items = nil
}
