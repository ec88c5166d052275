package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/schemasync/internal/build"
	"github.com/roach88/schemasync/internal/loader"
	"github.com/roach88/schemasync/internal/schema"
)

// Issue is one validation problem.
type Issue struct {
	Code    string `json:"code"`
	Item    string `json:"item,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Items  int     `json:"items"`
	Errors []Issue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <declarations-dir>",
		Short: "Validate declarations without contacting the remote service",
		Long: `Validate CUE item declarations without building them.

Checks CUE syntax, the declaration format, references to undeclared items,
dependency cycles between items, and evaluates every declaration with
placeholder ids so schema errors (duplicate field api keys, invalid
validators) are reported before a build.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(ctx context.Context, opts *RootOptions, dir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	res, errs := loader.Load(dir, loader.CollectAll)
	if res == nil {
		var le *loader.LoadError
		if errors.As(errs[0], &le) {
			return outputValidateError(formatter, le.Code, le.Message)
		}
		return outputValidateError(formatter, loader.ErrCodeGeneric, errs[0].Error())
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, dir)

	errs = append(errs, loader.Check(res.Items)...)
	errs = append(errs, evaluate(ctx, formatter, res, cfg.Naming())...)

	if len(errs) > 0 {
		return outputValidationErrors(formatter, len(res.Items), toIssues(errs))
	}
	return outputValidateSuccess(formatter, len(res.Items))
}

// evaluate runs every declaration with placeholder dependency ids and
// fingerprints the result, as a build would before any remote call.
func evaluate(ctx context.Context, formatter *OutputFormatter, res *loader.Result, naming schema.Naming) []error {
	ids := make(map[string]string, len(res.Items))
	for _, it := range res.Items {
		ids[it.Key()] = "unbuilt:" + it.Key()
	}

	var errs []error
	invalid := func(it *loader.Item, format string, args ...any) {
		errs = append(errs, &loader.LoadError{
			Code:    loader.ErrCodeInvalidItem,
			Message: fmt.Sprintf("%s: %s", it.Key(), fmt.Sprintf(format, args...)),
			Pos:     it.Pos,
		})
	}

	apiKeys := make(map[string]string, len(res.Items))
	for _, it := range res.Items {
		formatter.VerboseLog("Validating %s", it.Key())
		deps := build.StaticDependencies(it.Key(), naming, ids)
		def, err := it.Declaration()(ctx, deps)
		if err != nil {
			invalid(it, "%v", err)
			continue
		}
		if _, err := def.Fingerprint(naming); err != nil {
			invalid(it, "%v", err)
			continue
		}
		if owner, ok := apiKeys[def.APIKey]; ok {
			invalid(it, "api key %q is already used by %s", def.APIKey, owner)
			continue
		}
		apiKeys[def.APIKey] = it.Key()
	}
	return errs
}

func toIssues(errs []error) []Issue {
	issues := make([]Issue, 0, len(errs))
	for _, err := range errs {
		var le *loader.LoadError
		if errors.As(err, &le) {
			issue := Issue{Code: le.Code, Message: le.Message}
			if le.Pos.IsValid() {
				issue.Line = le.Pos.Line()
			}
			issues = append(issues, issue)
			continue
		}
		var be *build.ItemBuildError
		if errors.As(err, &be) {
			issues = append(issues, Issue{Code: loader.ErrCodeInvalidItem, Item: schema.Key(schema.Kind(be.ItemType), be.ItemName), Message: err.Error()})
			continue
		}
		issues = append(issues, Issue{Code: loader.ErrCodeGeneric, Message: err.Error()})
	}
	return issues
}

func outputValidateSuccess(formatter *OutputFormatter, items int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Items: items})
	}
	fmt.Fprintf(formatter.Writer, "\u2713 All %d item(s) valid\n", items)
	return nil
}

// outputValidateError reports a command-level failure (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports invalid declarations (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, items int, issues []Issue) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.Format == "json" {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Items: items, Errors: issues},
			Error:  &CLIError{Code: issues[0].Code, Message: issues[0].Message},
		})
		if err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return failure
}
