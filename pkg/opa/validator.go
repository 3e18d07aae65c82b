package opa

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const submissionQuery = "data.review.submission.violations"

// Violation is one rule a submission breaks.
type Violation struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type SubmittedDocument struct {
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
}

type Limits struct {
	MaxDocuments int `json:"maxDocuments"`
}

// Submission is the policy input of a new review job.
type Submission struct {
	Name      string              `json:"name"`
	UserID    string              `json:"userId"`
	Documents []SubmittedDocument `json:"documents"`
	Limits    Limits              `json:"limits"`
}

// Validator handles policy compilation and validation
type Validator struct {
	preparedQuery rego.PreparedEvalQuery
}

// NewValidatorFromDir loads the policies of policiesDir, or the built-in
// ones when policiesDir is empty.
func NewValidatorFromDir(policiesDir string) (*Validator, error) {
	reader := NewPolicyReader()

	var (
		policies map[string]string
		err      error
	)
	if policiesDir == "" {
		policies, err = reader.DefaultPolicies()
	} else {
		policies, err = reader.ReadPolicies(policiesDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policies: %w", err)
	}

	return NewValidator(policies)
}

func NewValidator(policies map[string]string) (*Validator, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("no policies provided for validation")
	}

	validator := &Validator{}

	if err := validator.compilePolicies(policies); err != nil {
		return nil, fmt.Errorf("failed to compile policies: %w", err)
	}

	zap.S().Named("opa").Infof("OPA validator initialized with %d policies", len(policies))
	return validator, nil
}

func (v *Validator) compilePolicies(policies map[string]string) error {
	compiler := ast.NewCompiler()
	modules := make(map[string]*ast.Module)

	for filename, content := range policies {
		module, err := ast.ParseModuleWithOpts(filename, content, ast.ParserOptions{
			RegoVersion: ast.RegoV1,
		})
		if err != nil {
			return fmt.Errorf("failed to parse policy %s: %w", filename, err)
		}
		modules[filename] = module
	}

	compiler.Compile(modules)
	if compiler.Failed() {
		return fmt.Errorf("policy compilation failed: %v", compiler.Errors)
	}

	r := rego.New(
		rego.Query(submissionQuery),
		rego.Compiler(compiler),
		rego.SetRegoVersion(ast.RegoV1),
	)

	preparedQuery, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to prepare rego query: %w", err)
	}

	v.preparedQuery = preparedQuery
	return nil
}

// Validate returns the violations of s. An empty list means the submission
// is accepted.
func (v *Validator) Validate(ctx context.Context, s Submission) ([]Violation, error) {
	if s.Documents == nil {
		s.Documents = []SubmittedDocument{}
	}

	resultSet, err := v.preparedQuery.Eval(ctx, rego.EvalInput(s))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed for submission %q: %w", s.Name, err)
	}

	if len(resultSet) == 0 || len(resultSet[0].Expressions) == 0 {
		zap.S().Named("opa").Debug("No policy results returned")
		return []Violation{}, nil
	}

	raw, ok := resultSet[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type from policy evaluation")
	}

	violations := make([]Violation, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected item type in result set")
		}

		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal violation: %w", err)
		}

		var violation Violation
		if err := json.Unmarshal(b, &violation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal violation: %w", err)
		}
		violations = append(violations, violation)
	}

	return violations, nil
}
