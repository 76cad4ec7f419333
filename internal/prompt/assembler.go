// Package prompt builds the role-tagged messages sent to the generation model.
package prompt

import (
	"strings"

	"github.com/hyperjump/vincentbot/internal/models"
)

// Defaults for an Assembler.
const (
	DefaultPersona = "You are a helpful assistant. Answer using only the provided context when possible. " +
		"If the context does not contain the answer, say that you do not know."
	DefaultSeparator     = "\n\n---\n\n"
	DefaultMaxInputChars = 12000

	contextHeader = "\n\nContext:\n"
)

// Assembler turns a query and ranked context chunks into a Prompt.
type Assembler struct {
	persona       string
	separator     string
	maxInputChars int
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithPersona sets the system instruction placed before the context.
func WithPersona(p string) Option {
	return func(a *Assembler) {
		if p != "" {
			a.persona = p
		}
	}
}

// WithSeparator sets the string placed between context chunks.
func WithSeparator(sep string) Option {
	return func(a *Assembler) { a.separator = sep }
}

// WithMaxInputChars caps the total characters of all messages; zero or less disables the cap.
func WithMaxInputChars(n int) Option {
	return func(a *Assembler) { a.maxInputChars = n }
}

// NewAssembler returns an assembler with the given options.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		persona:       DefaultPersona,
		separator:     DefaultSeparator,
		maxInputChars: DefaultMaxInputChars,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds a system message holding the persona and contexts (best first) and
// a user message holding the query verbatim. When the prompt is over the character
// limit, the lowest-ranked contexts are dropped until it fits; the query is never cut.
func (a *Assembler) Assemble(query string, contexts []string) models.Prompt {
	kept := contexts
	for {
		system := a.system(kept)
		chars := charCount(system) + charCount(query)
		if a.maxInputChars <= 0 || chars <= a.maxInputChars || len(kept) == 0 {
			return models.Prompt{
				Messages: []models.Message{
					{Role: models.RoleSystem, Content: system},
					{Role: models.RoleUser, Content: query},
				},
				ContextChunks: len(kept),
				DroppedChunks: len(contexts) - len(kept),
				Chars:         chars,
			}
		}
		kept = kept[:len(kept)-1]
	}
}

func (a *Assembler) system(contexts []string) string {
	if len(contexts) == 0 {
		return a.persona
	}
	var b strings.Builder
	b.WriteString(a.persona)
	b.WriteString(contextHeader)
	b.WriteString(strings.Join(contexts, a.separator))
	return b.String()
}

func charCount(s string) int {
	return len([]rune(s))
}
