package opa

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

//go:embed policies/*.rego
var defaultPolicies embed.FS

// PolicyReader Handle policy discovery and file reading
type PolicyReader struct{}

func NewPolicyReader() *PolicyReader {
	return &PolicyReader{}
}

// ReadPolicies reads the .rego files of policiesDir, skipping tests.
func (pr *PolicyReader) ReadPolicies(policiesDir string) (map[string]string, error) {
	policies, err := readRego(os.DirFS(policiesDir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read policies directory: %w", err)
	}
	if len(policies) == 0 {
		return nil, fmt.Errorf("no .rego policy files found in directory: %s", policiesDir)
	}

	zap.S().Named("opa").Infof("Successfully read %d policy files from: %s", len(policies), policiesDir)
	return policies, nil
}

// DefaultPolicies returns the policies shipped with the binary.
func (pr *PolicyReader) DefaultPolicies() (map[string]string, error) {
	return readRego(defaultPolicies, "policies")
}

func readRego(fsys fs.FS, dir string) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	policies := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") ||
			strings.HasSuffix(entry.Name(), "_test.rego") {
			continue
		}

		content, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, entry.Name())))
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", entry.Name(), err)
		}
		policies[entry.Name()] = string(content)
		zap.S().Named("opa").Debugf("Read policy: %s", entry.Name())
	}
	return policies, nil
}
