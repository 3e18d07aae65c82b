package feedback

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrNoFeedbackFits = errors.New("no feedback fits in the context budget")

type TokenCounter interface {
	Count(text string) int
}

// Record is one reviewer correction of an AI judgment.
type Record struct {
	Comment       string
	ExtractedText string
	Explanation   string
	CreatedAt     time.Time
}

// Builder assembles the summarization context of a checklist item within a
// token budget.
type Builder struct {
	counter TokenCounter
	budget  int
}

// NewBuilder reserves systemReserve of maxContextTokens for the system
// prompt; the rest is the budget of the context.
func NewBuilder(counter TokenCounter, maxContextTokens, systemReserve int) *Builder {
	return &Builder{counter: counter, budget: maxContextTokens - systemReserve}
}

func (b *Builder) Budget() int {
	return b.budget
}

const blockSeparator = "\n\n"

// Build always includes the item and the previous summary, then adds whole
// feedback blocks newest first until the next one would not fit. The
// assembled text, header and separators included, stays within the budget.
func (b *Builder) Build(name, description, previousSummary string, records []Record) (string, error) {
	mandatory := []string{fmt.Sprintf("Checklist item: %s\nDescription: %s", name, description)}
	if previousSummary != "" {
		mandatory = append(mandatory, "Previous summary:\n"+previousSummary)
	}

	// The header is charged at the widest count it can show.
	used := b.counter.Count(strings.Join(mandatory, blockSeparator)) +
		b.counter.Count(blockSeparator+includedHeader(len(records)))

	ordered := make([]Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	var selected []string
	for _, r := range ordered {
		block := feedbackBlock(len(selected)+1, r)
		cost := b.counter.Count(blockSeparator + block)
		if used+cost > b.budget {
			break
		}
		used += cost
		selected = append(selected, block)
	}

	// Counting the parts apart can differ from counting the joined text.
	out := assemble(mandatory, selected)
	for len(selected) > 0 && b.counter.Count(out) > b.budget {
		selected = selected[:len(selected)-1]
		out = assemble(mandatory, selected)
	}

	if len(selected) == 0 {
		return "", fmt.Errorf("%w: item %q needs %d tokens before any feedback, budget is %d", ErrNoFeedbackFits, name, used, b.budget)
	}
	return out, nil
}

func includedHeader(n int) string {
	return fmt.Sprintf("Feedback items included: %d", n)
}

func assemble(mandatory, selected []string) string {
	parts := make([]string, 0, len(mandatory)+len(selected)+1)
	parts = append(parts, mandatory...)
	parts = append(parts, includedHeader(len(selected)))
	parts = append(parts, selected...)
	return strings.Join(parts, blockSeparator)
}

func feedbackBlock(n int, r Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Feedback %d\nReviewer comment: %s", n, r.Comment)
	if r.ExtractedText != "" {
		fmt.Fprintf(&sb, "\nDocument excerpt: %s", r.ExtractedText)
	}
	if r.Explanation != "" {
		fmt.Fprintf(&sb, "\nAI reasoning: %s", r.Explanation)
	}
	return sb.String()
}
