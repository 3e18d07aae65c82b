package llm

import (
	"fmt"
	"strings"
)

const reviewSystemPrompt = "You are an AI assistant that reviews documents against checklist items. " +
	"You answer with a single JSON object between <<JSON_START>> and <<JSON_END>> and nothing else."

func documentReviewPrompt(in EvaluationInput) string {
	schema := fmt.Sprintf(`{
  "result": "pass" | "fail",
  "confidence": <number between 0 and 1>,
  "explanation": "<detailed reasoning> (IN %[1]s)",
  "shortExplanation": "<80 characters summary at most> (IN %[1]s)",
  "extractedText": "<relevant excerpt> (IN %[1]s)",
  "pageNumber": <page starting from 1, or several pages as "2, 5">
}`, in.Language)

	var b strings.Builder
	writeCheck(&b, in)
	b.WriteString("The PDF documents to review are attached.\n\n")
	writeTools(&b, in.Tools)
	writeLanguage(&b, in.Language)
	b.WriteString("Decide whether the documents comply with the check item and respond only in this format:\n\n")
	b.WriteString("<<JSON_START>>\n")
	b.WriteString(schema)
	b.WriteString("\n<<JSON_END>>\n\n")
	b.WriteString("Confidence: 0.90 to 1.00 for clear evidence, 0.70 to 0.89 when some uncertainty remains, 0.50 to 0.69 for ambiguous evidence.\n")
	return b.String()
}

func imageReviewPrompt(in EvaluationInput) string {
	schema := fmt.Sprintf(`{
  "result": "pass" | "fail",
  "confidence": <number between 0 and 1>,
  "explanation": "<detailed reasoning> (IN %[1]s)",
  "shortExplanation": "<80 characters summary at most> (IN %[1]s)",
  "usedImageIndexes": [<indexes of the images you actually relied on>],
  "boundingBoxes": [
    {"imageIndex": <image index>, "label": "<object label> (IN %[1]s)", "coordinates": [<x1>, <y1>, <x2>, <y2>]}
  ]
}`, in.Language)

	var b strings.Builder
	writeCheck(&b, in)
	b.WriteString("The images to review are attached. Address them by zero based index in the order given.\n")
	b.WriteString("When objects related to the check item are visible, give their bounding boxes as [x1, y1, x2, y2] on a 0 to 1000 scale.\n")
	b.WriteString("List in usedImageIndexes only the images you explicitly relied on; an empty list means none.\n\n")
	writeTools(&b, in.Tools)
	writeLanguage(&b, in.Language)
	b.WriteString("Respond only in this format:\n\n")
	b.WriteString("<<JSON_START>>\n")
	b.WriteString(schema)
	b.WriteString("\n<<JSON_END>>\n")
	return b.String()
}

func writeCheck(b *strings.Builder, in EvaluationInput) {
	fmt.Fprintf(b, "Check item: %s\n", in.ItemName)
	fmt.Fprintf(b, "Description: %s\n\n", in.ItemDescription)
	if in.FeedbackSummary != "" {
		b.WriteString("Reviewers corrected earlier judgments of this check item. Take their feedback into account:\n")
		b.WriteString(in.FeedbackSummary)
		b.WriteString("\n\n")
	}
}

func writeTools(b *strings.Builder, tools *Tools) {
	if tools == nil {
		return
	}
	if len(tools.KnowledgeBases) > 0 {
		b.WriteString("Reference knowledge bases configured for this check. Search them with the " + ToolKnowledgeBaseQuery + " tool when it is offered:\n")
		for _, kb := range tools.KnowledgeBases {
			fmt.Fprintf(b, "- %s: %s\n", kb.ID, kb.Description)
		}
		b.WriteString("\n")
	}
	if tools.CodeInterpreter {
		b.WriteString("Use the " + ToolCodeInterpreter + " tool, when it is offered, for calculations instead of computing by hand.\n\n")
	}
	if len(tools.MCPServers) > 0 {
		fmt.Fprintf(b, "External sources available to the reviewer: %s\n\n", strings.Join(tools.MCPServers, ", "))
	}
}

func writeLanguage(b *strings.Builder, language string) {
	fmt.Fprintf(b, "Write every value of the answer in %s.\n\n", language)
}
