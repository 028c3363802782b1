package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/knol"
)

// field is the part of a card the parser is currently filling.
type field int

const (
	seeking field = iota
	front
	back
	tags
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", front},
	{"A:", back},
	{"T:", tags},
}

const separator = "---"

// ParseFile reads a deck file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cards, err := Parse(file)
	for i := range cards {
		cards[i].Source = path
	}
	return cards, err
}

// Parse reads a deck from r. A card starts at a "Q:" line; "A:" starts its
// back and "T:" lists comma-separated tags. Lines without a prefix continue
// the current field. "---" or a new "Q:" ends the card. Cards get their
// content-derived ID; scheduling state is left for the caller to fill.
func Parse(r io.Reader) ([]domain.Card, error) {
	p := &deckParser{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	p.finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.cards, nil
}

type deckParser struct {
	cards   []domain.Card
	current domain.Card
	tagList []string
	state   field
	block   []string
}

func (p *deckParser) line(line string) {
	if strings.TrimSpace(line) == separator {
		p.finishCard()
		return
	}

	for _, pf := range prefixes {
		if !strings.HasPrefix(line, pf.prefix) {
			continue
		}
		p.flushBlock()
		if pf.field == front && p.state != seeking {
			p.finishCard()
		}
		p.state = pf.field
		p.block = append(p.block, strings.TrimPrefix(line[len(pf.prefix):], " "))
		return
	}

	if p.state != seeking {
		p.block = append(p.block, line)
	}
}

// flushBlock stores the lines collected so far into the current field.
func (p *deckParser) flushBlock() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimSpace(strings.Join(p.block, "\n"))
	switch p.state {
	case front:
		p.current.Front = content
	case back:
		p.current.Back = content
	case tags:
		p.tagList = append(p.tagList, strings.FieldsFunc(content, func(r rune) bool {
			return r == ',' || r == '\n'
		})...)
	}
	p.block = nil
}

func (p *deckParser) finishCard() {
	p.flushBlock()
	if p.current.Front != "" {
		p.current.Tags = knol.NormalizeTags(p.tagList)
		p.current.ID = knol.ID(p.current)
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Card{}
	p.tagList = nil
	p.state = seeking
}
