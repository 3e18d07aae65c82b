package llm

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// reviewSchema types the fields a review answer may carry. Missing fields
// are filled with defaults after validation.
const reviewSchema = `{
  "type": "object",
  "properties": {
    "result": {"type": "string", "enum": ["pass", "fail"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "explanation": {"type": "string"},
    "shortExplanation": {"type": "string"},
    "extractedText": {"type": "string"},
    "pageNumber": {
      "oneOf": [
        {"type": "integer"},
        {"type": "string", "pattern": "^\\s*\\d+(\\s*,\\s*\\d+)*\\s*$"}
      ]
    },
    "usedImageIndexes": {
      "type": "array",
      "items": {"type": "integer", "minimum": 0}
    },
    "boundingBoxes": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "imageIndex": {"type": "integer", "minimum": 0},
          "label": {"type": "string"},
          "coordinates": {
            "type": "array",
            "items": {"type": "number"},
            "minItems": 4,
            "maxItems": 4
          }
        },
        "required": ["coordinates"]
      }
    }
  }
}`

var compiledReviewSchema = jsonschema.MustCompileString("review.json", reviewSchema)

func validateReview(doc map[string]any) error {
	if err := compiledReviewSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return nil
}
