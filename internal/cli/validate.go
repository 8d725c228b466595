package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pollsim/internal/config"
	"github.com/roach88/pollsim/internal/harness"
)

// ValidationError is one file that failed to load.
type ValidationError struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return fmt.Sprintf("✓ %d file(s) valid", r.Files)
	}
	var b strings.Builder
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "✗ %s [%s]: %s\n", e.File, e.Code, e.Message)
	}
	fmt.Fprintf(&b, "%d of %d file(s) invalid", len(r.Errors), r.Files)
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate scenarios and configuration files",
		Long: `Validate YAML scenarios and CUE configuration without running anything.

Directories are walked recursively. .yaml and .yml files are parsed as
scenarios, .cue files are unified with the configuration schema.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var files []string
	for _, p := range paths {
		found, err := collectValidateFiles(p)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "cannot read "+p, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no scenario or config files found", nil)
	}

	result := ValidationResult{Valid: true, Files: len(files)}
	for _, f := range files {
		formatter.VerboseLog("validating %s", f)
		if verr := validateFile(f); verr != nil {
			result.Valid = false
			result.Errors = append(result.Errors, *verr)
		}
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) invalid", len(result.Errors)))
	}
	return nil
}

// collectValidateFiles returns path itself, or the scenario and config
// files under it when path is a directory.
func collectValidateFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(p) {
		case ".yaml", ".yml", ".cue":
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func validateFile(path string) *ValidationError {
	var (
		err  error
		code string
	)
	switch filepath.Ext(path) {
	case ".cue":
		_, err = config.Load(path)
		code = ErrCodeConfig
	case ".yaml", ".yml":
		_, err = harness.LoadScenario(path)
		code = ErrCodeScenario
	default:
		return &ValidationError{File: path, Code: ErrCodeGeneric, Message: "unsupported file type"}
	}
	if err != nil {
		return &ValidationError{File: path, Code: code, Message: err.Error()}
	}
	return nil
}
