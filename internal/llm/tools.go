package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

const (
	ToolKnowledgeBaseQuery = "knowledge_base_query"
	ToolCodeInterpreter    = "code_interpreter"

	traceSuccess = "success"
	traceError   = "error"

	defaultResultsPerKnowledgeBase = 5
)

var codeLanguages = []string{"python", "javascript", "typescript"}

// Passage is one retrieval hit of a knowledge base.
type Passage struct {
	KnowledgeBaseID string  `json:"knowledgeBaseId"`
	Text            string  `json:"text,omitempty"`
	Score           float64 `json:"score"`
	Location        string  `json:"location,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type KnowledgeBaseRetriever interface {
	Retrieve(ctx context.Context, knowledgeBaseID, query string, maxResults int) ([]Passage, error)
}

type CodeResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

type CodeRunner interface {
	Run(ctx context.Context, language, code string) (CodeResult, error)
}

// toolbox runs the tools one checklist item is configured with.
type toolbox struct {
	knowledgeBases []KnowledgeBase
	retriever      KnowledgeBaseRetriever
	runner         CodeRunner
}

// newToolbox returns nil when the item has no tool a backend can serve.
func newToolbox(tools *Tools, retriever KnowledgeBaseRetriever, runner CodeRunner) *toolbox {
	if tools == nil {
		return nil
	}
	box := &toolbox{}
	if len(tools.KnowledgeBases) > 0 && retriever != nil {
		box.knowledgeBases = tools.KnowledgeBases
		box.retriever = retriever
	}
	if tools.CodeInterpreter && runner != nil {
		box.runner = runner
	}
	if box.retriever == nil && box.runner == nil {
		return nil
	}
	return box
}

func (t *toolbox) definitions() []Tool {
	var out []Tool
	if t.retriever != nil {
		out = append(out, Tool{
			Type: "function",
			Function: FunctionDefinition{
				Name:        ToolKnowledgeBaseQuery,
				Description: "Search the knowledge bases configured for this check item and return the most relevant passages.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":           map[string]any{"type": "string", "description": "Natural language query"},
						"maxResultsPerKb": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
					},
					"required": []string{"query"},
				},
			},
		})
	}
	if t.runner != nil {
		out = append(out, Tool{
			Type: "function",
			Function: FunctionDefinition{
				Name:        ToolCodeInterpreter,
				Description: "Execute code in a sandbox for calculations and data analysis. Returns stdout, stderr and the exit code.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"code":     map[string]any{"type": "string"},
						"language": map[string]any{"type": "string", "enum": codeLanguages},
					},
					"required": []string{"code"},
				},
			},
		})
	}
	return out
}

// call executes one tool call. The returned content goes back to the model;
// failures are reported to the model rather than aborting the evaluation.
func (t *toolbox) call(ctx context.Context, call ToolCall) (ToolTrace, string) {
	trace := ToolTrace{ID: call.ID, Name: call.Function.Name, Input: call.Function.Arguments}

	var (
		output any
		err    error
	)
	switch {
	case call.Function.Name == ToolKnowledgeBaseQuery && t.retriever != nil:
		output, err = t.queryKnowledgeBases(ctx, call.Function.Arguments)
	case call.Function.Name == ToolCodeInterpreter && t.runner != nil:
		output, err = t.runCode(ctx, call.Function.Arguments)
	default:
		err = fmt.Errorf("unknown tool %q", call.Function.Name)
	}

	if err != nil {
		trace.Status = traceError
		trace.Output = err.Error()
		return trace, fmt.Sprintf("Tool %s failed: %v", call.Function.Name, err)
	}

	raw, err := json.Marshal(output)
	if err != nil {
		trace.Status = traceError
		trace.Output = err.Error()
		return trace, fmt.Sprintf("Tool %s failed: %v", call.Function.Name, err)
	}
	trace.Status = traceSuccess
	trace.Output = string(raw)
	return trace, string(raw)
}

type knowledgeBaseAnswer struct {
	Query        string    `json:"query"`
	TotalResults int       `json:"totalResults"`
	Results      []Passage `json:"results"`
}

// queryKnowledgeBases searches every configured knowledge base. A failing
// knowledge base becomes an error entry next to the other results.
func (t *toolbox) queryKnowledgeBases(ctx context.Context, arguments string) (knowledgeBaseAnswer, error) {
	var args struct {
		Query           string `json:"query"`
		MaxResultsPerKb int    `json:"maxResultsPerKb"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return knowledgeBaseAnswer{}, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Query == "" {
		return knowledgeBaseAnswer{}, fmt.Errorf("invalid arguments: query is empty")
	}
	if args.MaxResultsPerKb <= 0 {
		args.MaxResultsPerKb = defaultResultsPerKnowledgeBase
	}

	results := []Passage{}
	for _, kb := range t.knowledgeBases {
		passages, err := t.retriever.Retrieve(ctx, kb.ID, args.Query, args.MaxResultsPerKb)
		if err != nil {
			results = append(results, Passage{KnowledgeBaseID: kb.ID, Error: err.Error()})
			continue
		}
		for _, p := range passages {
			p.KnowledgeBaseID = kb.ID
			results = append(results, p)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return knowledgeBaseAnswer{Query: args.Query, TotalResults: len(results), Results: results}, nil
}

func (t *toolbox) runCode(ctx context.Context, arguments string) (CodeResult, error) {
	var args struct {
		Code     string `json:"code"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return CodeResult{}, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Language == "" {
		args.Language = codeLanguages[0]
	}
	if !slices.Contains(codeLanguages, args.Language) {
		return CodeResult{}, fmt.Errorf("unsupported language %q", args.Language)
	}
	return t.runner.Run(ctx, args.Language, args.Code)
}
