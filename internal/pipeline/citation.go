package pipeline

import (
	"slices"
	"unicode/utf8"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/store/model"
)

const (
	traceLimit     = 500
	truncatedMark  = "<!TRUNCATED>"
	traceSucceeded = "success"
)

// sourceReferences cites the documents an evaluation relied on. PDF answers
// cite every PDF on every reported page. Image answers cite the images named
// in usedImageIndexes, or all images when none are named, and carry the
// bounding boxes of the image they point at.
func sourceReferences(docs []llm.Document, out *llm.EvaluationOutput) []model.SourceReference {
	refs := []model.SourceReference{}

	if out.ReviewType != model.ReviewTypeImage {
		for _, d := range docs {
			if d.IsImage() {
				continue
			}
			for _, page := range out.Pages {
				refs = append(refs, model.SourceReference{DocumentID: d.ID, PageNumber: intPtr(page)})
			}
		}
		return refs
	}

	var images []llm.Document
	for _, d := range docs {
		if d.IsImage() {
			images = append(images, d)
		}
	}

	if len(out.UsedImageIndexes) > 0 {
		seen := map[int]bool{}
		for _, idx := range out.UsedImageIndexes {
			if idx < 0 || idx >= len(images) || seen[idx] {
				continue
			}
			seen[idx] = true
			refs = append(refs, model.SourceReference{DocumentID: images[idx].ID})
		}
	} else {
		for _, img := range images {
			refs = append(refs, model.SourceReference{DocumentID: img.ID})
		}
	}

	for _, box := range out.BoundingBoxes {
		if box.ImageIndex < 0 || box.ImageIndex >= len(images) || len(box.Coordinates) != 4 {
			continue
		}
		refs = mergeBox(refs, images[box.ImageIndex], model.BoundingBox{Label: box.Label, Coordinates: box.Coordinates})
	}
	return refs
}

// mergeBox attaches box to the first reference of the image that has no box
// yet. An image already carrying an identical box is left alone.
func mergeBox(refs []model.SourceReference, img llm.Document, box model.BoundingBox) []model.SourceReference {
	free := -1
	for i, ref := range refs {
		if ref.DocumentID != img.ID {
			continue
		}
		if ref.BoundingBox == nil {
			if free < 0 {
				free = i
			}
			continue
		}
		if sameBox(*ref.BoundingBox, box) {
			return refs
		}
	}

	if free >= 0 {
		refs[free].BoundingBox = &box
		return refs
	}
	return append(refs, model.SourceReference{DocumentID: img.ID, BoundingBox: &box})
}

func sameBox(a, b model.BoundingBox) bool {
	return a.Label == b.Label && slices.Equal(a.Coordinates, b.Coordinates)
}

func toolExecutions(traces []llm.ToolTrace) []model.ToolExecution {
	out := make([]model.ToolExecution, 0, len(traces))
	for _, t := range traces {
		status := t.Status
		if status == "" {
			status = traceSucceeded
		}
		out = append(out, model.ToolExecution{
			ToolName: t.Name,
			Input:    truncate(t.Input),
			Output:   truncate(t.Output),
			Status:   status,
		})
	}
	return out
}

// truncate keeps the first traceLimit characters of s.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= traceLimit {
		return s
	}
	return truncatedMark + string([]rune(s)[:traceLimit])
}

func intPtr(v int) *int {
	return &v
}
