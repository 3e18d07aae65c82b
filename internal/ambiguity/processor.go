package ambiguity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/log"
	"github.com/kubev2v/document-review/pkg/metrics"
)

const (
	verdictAmbiguous = "AMBIGUOUS"
	verdictClear     = "CLEAR"
)

const systemPrompt = "You check the wording of document review criteria. " +
	"A criterion is ambiguous when two careful reviewers could reasonably reach different verdicts on the same document."

var bullets = []string{"-", "*", "•", "・"}

type Completer interface {
	Complete(ctx context.Context, system, prompt string) (llm.Completion, error)
}

type Summary struct {
	Candidates int
	Ambiguous  int
	Clear      int
	Failed     int
}

// Processor flags leaf checklist items whose description is ambiguous.
type Processor struct {
	store     store.Store
	completer Completer
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewProcessor(s store.Store, completer Completer) *Processor {
	return &Processor{
		store:     s,
		completer: completer,
		now:       time.Now,
		log:       zap.S().Named("ambiguity"),
	}
}

// Run checks every leaf item with a description. Items are processed in
// sequential batches of concurrency items; the items of a batch run
// concurrently. Failed items are counted and skipped.
func (p *Processor) Run(ctx context.Context, setID uuid.UUID, concurrency int) (Summary, error) {
	tracer := log.NewDebugLogger("ambiguity").
		WithContext(ctx).
		Operation("ambiguity_review").
		WithUUID("set_id", setID).
		Build()

	items, err := p.store.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(setID))
	if err != nil {
		tracer.Error(err).Log()
		return Summary{}, err
	}

	candidates := make([]model.ChecklistItemNode, 0, len(items))
	for _, item := range items {
		if !item.HasChildren && strings.TrimSpace(item.Description) != "" {
			candidates = append(candidates, item)
		}
	}

	concurrency = max(concurrency, 1)
	summary := Summary{Candidates: len(candidates)}
	var mu sync.Mutex

	for start := 0; start < len(candidates); start += concurrency {
		batch := candidates[start:min(start+concurrency, len(candidates))]
		tracer.Step("batch").WithInt("offset", start).WithInt("size", len(batch)).Log()

		var wg sync.WaitGroup
		wg.Add(len(batch))
		for _, item := range batch {
			go func() {
				defer wg.Done()
				outcome := p.check(ctx, item.ChecklistItem)
				metrics.IncreaseAmbiguityItemsMetric(outcome)

				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case "ambiguous":
					summary.Ambiguous++
				case "clear":
					summary.Clear++
				default:
					summary.Failed++
				}
			}()
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			tracer.Error(err).Log()
			return summary, err
		}
	}

	tracer.Success().
		WithInt("candidates", summary.Candidates).
		WithInt("ambiguous", summary.Ambiguous).
		WithInt("failed", summary.Failed).
		Log()
	return summary, nil
}

func (p *Processor) check(ctx context.Context, item model.ChecklistItem) string {
	completion, err := p.completer.Complete(ctx, systemPrompt, prompt(item))
	if err != nil {
		p.log.Warnw("ambiguity check failed", "item_id", item.ID, "error", err)
		return "failed"
	}

	ambiguous, suggestions := ParseVerdict(completion.Text)
	if !ambiguous {
		return "clear"
	}

	review := model.AmbiguityReview{Suggestions: suggestions, DetectedAt: p.now().UTC()}
	if err := p.store.Checklist().UpdateAmbiguityReview(ctx, item.ID, review); err != nil {
		p.log.Warnw("failed to save ambiguity review", "item_id", item.ID, "error", err)
		return "failed"
	}
	return "ambiguous"
}

func prompt(item model.ChecklistItem) string {
	return fmt.Sprintf(`Checklist item: %s
Description: %s

Answer %s on the first line when the description is clear enough to judge a document against.
Otherwise answer %s on the first line, followed by one bullet per suggested rewording or clarification, each starting with "- ".`,
		item.Name, item.Description, verdictClear, verdictAmbiguous)
}

// ParseVerdict reads the first non empty line as the verdict and, for
// ambiguous items, the bullet lines after it as suggestions.
func ParseVerdict(text string) (bool, []string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	first := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			first = i
			break
		}
	}
	if first < 0 || !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(lines[first])), verdictAmbiguous) {
		return false, nil
	}

	suggestions := []string{}
	for _, line := range lines[first+1:] {
		line = strings.TrimSpace(line)
		for _, bullet := range bullets {
			if rest, found := strings.CutPrefix(line, bullet); found {
				if rest = strings.TrimSpace(rest); rest != "" {
					suggestions = append(suggestions, rest)
				}
				break
			}
		}
	}
	return true, suggestions
}
