package llm

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kubev2v/document-review/internal/store/model"
)

type Document struct {
	ID       uuid.UUID
	Filename string
	Key      string
	FileType string
}

func (d Document) IsImage() bool {
	return d.FileType == model.FileTypeImage
}

type KnowledgeBase struct {
	ID          string
	Description string
}

type Tools struct {
	KnowledgeBases  []KnowledgeBase
	CodeInterpreter bool
	MCPServers      []string
}

type EvaluationInput struct {
	ItemName        string
	ItemDescription string
	Language        string
	FeedbackSummary string
	// Documents are ordered PDFs first, then images. Image indexes in the
	// answer count images only.
	Documents []Document
	Tools     *Tools
}

type BoundingBox struct {
	ImageIndex  int
	Label       string
	Coordinates []float64
}

type ToolTrace struct {
	ID     string
	Name   string
	Input  string
	Output string
	Status string
}

type EvaluationOutput struct {
	ReviewType       string
	Model            string
	Result           string
	Confidence       float64
	Explanation      string
	ShortExplanation string
	ExtractedText    string
	Pages            []int
	UsedImageIndexes []int
	BoundingBoxes    []BoundingBox
	ToolTraces       []ToolTrace
	InputTokens      int64
	OutputTokens     int64
	Cost             float64
}

// ReviewTypeOf returns IMAGE as soon as one document is an image.
func ReviewTypeOf(docs []Document) string {
	for _, d := range docs {
		if d.IsImage() {
			return model.ReviewTypeImage
		}
	}
	return model.ReviewTypePDF
}

// ParseReview turns a model answer into an evaluation. Answers without a
// JSON object become a failed judgment carrying the raw text; answers whose
// JSON has the wrong shape are rejected with ErrInvalidOutput.
func ParseReview(text, reviewType string) (*EvaluationOutput, error) {
	doc, err := ExtractJSON(text)
	if err != nil {
		doc = map[string]any{
			"result":           model.JudgmentFail,
			"confidence":       0.5,
			"explanation":      text,
			"shortExplanation": "Failed to parse the model answer",
		}
	}
	if err := validateReview(doc); err != nil {
		return nil, err
	}

	out := &EvaluationOutput{
		ReviewType:       reviewType,
		Result:           stringField(doc, "result", model.JudgmentFail),
		Confidence:       numberField(doc, "confidence", 0.5),
		Explanation:      stringField(doc, "explanation", "No explanation provided"),
		ShortExplanation: stringField(doc, "shortExplanation", "No short explanation provided"),
	}

	if reviewType == model.ReviewTypeImage {
		out.UsedImageIndexes = intList(doc["usedImageIndexes"])
		out.BoundingBoxes = boundingBoxes(doc["boundingBoxes"])
		return out, nil
	}

	out.ExtractedText = stringField(doc, "extractedText", "")
	out.Pages = pages(doc["pageNumber"])
	return out, nil
}

func stringField(doc map[string]any, key, def string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return def
}

func numberField(doc map[string]any, key string, def float64) float64 {
	if v, ok := doc[key].(float64); ok {
		return v
	}
	return def
}

func intList(v any) []int {
	out := []int{}
	list, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		if f, ok := item.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

// pages accepts 3 or "2, 5" and defaults to the first page.
func pages(v any) []int {
	switch p := v.(type) {
	case float64:
		if p >= 1 {
			return []int{int(p)}
		}
	case string:
		var out []int
		for _, part := range strings.Split(p, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err == nil && n > 0 {
				out = append(out, n)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []int{1}
}

func boundingBoxes(v any) []BoundingBox {
	out := []BoundingBox{}
	list, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		box := BoundingBox{Label: stringField(m, "label", "")}
		if idx, ok := m["imageIndex"].(float64); ok {
			box.ImageIndex = int(idx)
		}
		if coords, ok := m["coordinates"].([]any); ok {
			for _, c := range coords {
				if f, ok := c.(float64); ok {
					box.Coordinates = append(box.Coordinates, f)
				}
			}
		}
		out = append(out, box)
	}
	return out
}
