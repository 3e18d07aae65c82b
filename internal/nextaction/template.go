package nextaction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kubev2v/document-review/internal/store/model"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = `You assist a reviewer who checked documents against the checklist "{{checklist_name}}".
{{pass_count}} items passed and {{fail_count}} items failed.

Documents:
{{document_info}}

Failed items:
{{failed_items}}

Corrections made by the reviewer:
{{user_overrides}}

All results:
{{all_results}}

Write the concrete next actions the submitter has to take to make the documents compliant, most important first.`

// Item is one checklist result as seen by the template.
type Item struct {
	Name          string
	Description   string
	Result        string
	Confidence    *float64
	Explanation   string
	ExtractedText string
	UserOverride  bool
	UserComment   string
}

type Data struct {
	ChecklistName string
	PassCount     int
	FailCount     int
	FailedItems   []Item
	UserOverrides []Item
	AllResults    []Item
	Documents     []string
}

// Expand replaces the template variables with data.
func Expand(template string, data Data) string {
	return strings.NewReplacer(
		"{{failed_items}}", failedItems(data.FailedItems),
		"{{user_overrides}}", userOverrides(data.UserOverrides),
		"{{all_results}}", allResults(data.AllResults),
		"{{document_info}}", documentInfo(data.Documents),
		"{{checklist_name}}", data.ChecklistName,
		"{{pass_count}}", strconv.Itoa(data.PassCount),
		"{{fail_count}}", strconv.Itoa(data.FailCount),
	).Replace(template)
}

func failedItems(items []Item) string {
	if len(items) == 0 {
		return "No failed items."
	}

	blocks := make([]string, 0, len(items))
	for _, item := range items {
		head := fmt.Sprintf("- **%s**: Failed", item.Name)
		if item.Confidence != nil {
			head += fmt.Sprintf(" (Confidence: %d%%)", int(*item.Confidence*100))
		}
		lines := []string{head}
		if item.Description != "" {
			lines = append(lines, "  Rule: "+item.Description)
		}
		if item.Explanation != "" {
			lines = append(lines, "  Explanation: "+item.Explanation)
		}
		if excerpts := extractedText(item.ExtractedText); len(excerpts) > 0 {
			if len(excerpts) > 3 {
				excerpts = excerpts[:3]
			}
			lines = append(lines, fmt.Sprintf("  Extracted text: \"%s\"", strings.Join(excerpts, "\", \"")))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// userOverrides reads Result as the reviewer's judgment; the AI said the opposite.
func userOverrides(items []Item) string {
	if len(items) == 0 {
		return "No user overrides."
	}

	blocks := make([]string, 0, len(items))
	for _, item := range items {
		ai, user := "Pass", "Fail"
		if item.Result == model.JudgmentPass {
			ai, user = "Fail", "Pass"
		}
		block := fmt.Sprintf("- **%s**: AI judged %s -> User changed to %s", item.Name, ai, user)
		if item.UserComment != "" {
			block += "\n  Comment: " + item.UserComment
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

func allResults(items []Item) string {
	if len(items) == 0 {
		return "No results available."
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		result := "Pending"
		switch item.Result {
		case model.JudgmentPass:
			result = "Pass"
		case model.JudgmentFail:
			result = "Fail"
		}
		if item.UserOverride {
			result += " (User Override)"
		}
		lines = append(lines, fmt.Sprintf("- **%s**: %s", item.Name, result))
	}
	return strings.Join(lines, "\n")
}

func documentInfo(filenames []string) string {
	if len(filenames) == 0 {
		return "No documents."
	}

	lines := make([]string, 0, len(filenames))
	for _, name := range filenames {
		lines = append(lines, "- "+name)
	}
	return strings.Join(lines, "\n")
}

// extractedText accepts a JSON list of excerpts or plain text.
func extractedText(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(value), &list); err == nil {
		return list
	}
	return []string{value}
}
