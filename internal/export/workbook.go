package export

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/kubev2v/document-review/internal/store/model"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

var resultHeaders = []string{
	"Check Item",
	"Description",
	"Status",
	"Result",
	"User Override",
	"Confidence",
	"Short Explanation",
	"Explanation",
	"Extracted Text",
	"User Comment",
	"Input Tokens",
	"Output Tokens",
	"Cost",
}

// ResultsXLSX renders the results of a job in checklist order, with a
// summary sheet carrying the job totals.
func ResultsXLSX(job model.ReviewJob, items []model.ChecklistItemNode, results model.ReviewResultList) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	for i, h := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(resultsSheet, cell, h); err != nil {
			return nil, err
		}
	}

	byCheck := make(map[uuid.UUID]model.ReviewResult, len(results))
	for _, r := range results {
		byCheck[r.CheckID] = r
	}

	row := 2
	for _, item := range items {
		r, ok := byCheck[item.ID]
		if !ok {
			continue
		}
		values := []any{
			item.Name,
			item.Description,
			string(r.Status),
			deref(r.Result),
			yesNo(r.UserOverride),
			confidence(r.ConfidenceScore),
			deref(r.ShortExplanation),
			deref(r.Explanation),
			deref(r.ExtractedText),
			deref(r.UserComment),
			r.InputTokens,
			r.OutputTokens,
			r.TotalCost,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(resultsSheet, cell, v); err != nil {
				return nil, err
			}
		}
		row++
	}

	_ = f.SetColWidth(resultsSheet, "A", "A", 28)
	_ = f.SetColWidth(resultsSheet, "B", "B", 48)
	_ = f.SetColWidth(resultsSheet, "G", "I", 60)

	if err := writeSummary(f, job); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, job model.ReviewJob) error {
	rows := [][]any{
		{"Job", job.Name},
		{"Status", string(job.Status)},
		{"Created", job.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Input Tokens", job.TotalInputTokens},
		{"Output Tokens", job.TotalOutputTokens},
		{"Total Cost", job.TotalCost},
	}
	if job.NextAction != nil {
		rows = append(rows, []any{"Next Action", *job.NextAction})
	}
	for i, r := range rows {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &r); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 16)
	_ = f.SetColWidth(summarySheet, "B", "B", 80)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func confidence(c *float64) any {
	if c == nil {
		return ""
	}
	return *c
}
