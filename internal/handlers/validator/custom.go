package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kubev2v/document-review/internal/store/model"
)

// Document names are plain file names: no path separators, no control
// characters.
var documentNameRegex = regexp.MustCompile(`^[^/\\\x00-\x1f]{1,255}$`)

func documentNameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return documentNameRegex.MatchString(val)
}

func fileTypeValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	switch val {
	case model.FileTypePDF, model.FileTypeImage:
		return true
	default:
		return false
	}
}

func judgmentValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return val == model.JudgmentPass || val == model.JudgmentFail
}

func uuidValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(uuid.UUID)
	if !ok {
		return false
	}
	return val != uuid.UUID{}
}
