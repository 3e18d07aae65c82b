package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewReviewJobValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("set_id", uuidValidator),
		},
		{
			Rule: registerFn("document_name", documentNameValidator),
		},
		{
			Rule: registerFn("file_type", fileTypeValidator),
		},
		{
			Rule: registerFn("judgment", judgmentValidator),
		},
	}
}
