package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/parser"
	"github.com/skilletai/skillet/internal/style"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate skill documents",
	Long: `Validate skill documents for syntax errors and structural problems.

This command checks:
- Frontmatter syntax and required metadata (id, version)
- Step section structure and per-type configuration
- Field schema declarations
- Duplicate step names and unknown step types

With --canonical the source is also compared against its canonical
serialization, showing formatting drift as a diff.

Examples:
  skillet validate greet.skill.md            # Validate single file
  skillet validate *.skill.md                # Validate multiple files
  skillet validate --recursive ./skills      # Validate directory recursively
  skillet validate --output json greet.skill.md  # JSON output for CI`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		validateSkills(cmd, args)
	},
}

var (
	validateRecursive bool
	validateShowAll   bool
	validateCanonical bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVarP(&validateRecursive, "recursive", "r", false, "recursively validate files in directories")
	validateCmd.Flags().BoolVar(&validateShowAll, "show-all", false, "show all validation results, including successful ones")
	validateCmd.Flags().BoolVar(&validateCanonical, "canonical", false, "diff each document against its canonical serialization")
}

// ValidationResult represents the result of validating one document.
type ValidationResult struct {
	File       string        `json:"file" yaml:"file"`
	Valid      bool          `json:"valid" yaml:"valid"`
	Duration   time.Duration `json:"duration_ms" yaml:"duration_ms"`
	Errors     []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	Canonical  bool          `json:"canonical,omitempty" yaml:"canonical,omitempty"`
	Diff       string        `json:"diff,omitempty" yaml:"diff,omitempty"`
	parseError error
}

// ValidationSummary represents the summary of all validation results.
type ValidationSummary struct {
	Total    int                `json:"total" yaml:"total"`
	Valid    int                `json:"valid" yaml:"valid"`
	Invalid  int                `json:"invalid" yaml:"invalid"`
	Duration time.Duration      `json:"total_duration_ms" yaml:"total_duration_ms"`
	Results  []ValidationResult `json:"results" yaml:"results"`
}

func validateSkills(cmd *cobra.Command, args []string) {
	start := time.Now()

	files, err := collectFiles(args, validateRecursive)
	if err != nil {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("Failed to collect files: %v", err))
		os.Exit(1)
	}

	if len(files) == 0 {
		style.Warning(cmd.ErrOrStderr(), "No skill documents found to validate")
		return
	}

	docParser := parser.NewDocParser()

	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		result := validateSingleFile(docParser, file)
		results = append(results, result)

		if !viper.GetBool("quiet") && viper.GetString("output") == "text" {
			printValidationResult(cmd.OutOrStdout(), result)
		}
	}

	summary := ValidationSummary{
		Total:    len(results),
		Duration: time.Since(start),
		Results:  results,
	}
	for _, result := range results {
		if result.Valid {
			summary.Valid++
		} else {
			summary.Invalid++
		}
	}

	printResult(cmd.OutOrStdout(), summary, func(w io.Writer) {
		printValidationSummary(w, summary)
	})

	if summary.Invalid > 0 {
		os.Exit(1)
	}
}

func validateSingleFile(p parser.Parser, filename string) ValidationResult {
	start := time.Now()
	result := ValidationResult{
		File:  filename,
		Valid: true,
	}

	skill, err := p.ParseFile(filename)
	result.Duration = time.Since(start)

	if err != nil {
		result.Valid = false
		result.parseError = err
		for _, perr := range parser.Flatten(err) {
			result.Errors = append(result.Errors, perr.Error())
		}
		if len(result.Errors) == 0 {
			result.Errors = append(result.Errors, err.Error())
		}
		return result
	}

	if validateCanonical {
		result.Canonical, result.Diff = canonicalDiff(filename, skill)
	}

	log.Debug().
		Str("file", filename).
		Bool("valid", result.Valid).
		Dur("duration", result.Duration).
		Msg("validated skill document")

	return result
}

// canonicalDiff compares the document source against the canonical
// serialization of its parsed model. Drift is reported, not an error.
func canonicalDiff(filename string, skill *ast.Skill) (bool, string) {
	source, err := os.ReadFile(filename)
	if err != nil {
		return false, ""
	}

	canonical, err := parser.Serialize(skill)
	if err != nil {
		return false, ""
	}

	return diffAgainstCanonical(source, canonical)
}

func printValidationResult(w io.Writer, result ValidationResult) {
	if result.Valid {
		if validateShowAll {
			style.Success(w, fmt.Sprintf("%s (%v)", result.File, result.Duration))
		}
		if result.Diff != "" {
			style.Warning(w, fmt.Sprintf("%s differs from its canonical form:", result.File))
			fmt.Fprintln(w, result.Diff)
		}
		return
	}

	if result.parseError != nil {
		style.PrintParseError(w, result.File, result.parseError)
	} else {
		style.Error(w, fmt.Sprintf("%s (%v)", result.File, result.Duration))
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  %s\n", errMsg)
		}
	}
}

func collectFiles(args []string, recursive bool) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			if !recursive {
				return nil, fmt.Errorf("%s is a directory, use --recursive to validate directories", arg)
			}
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if parser.IsSkillFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("error walking directory %s: %w", arg, err)
			}
		} else if parser.IsSkillFile(arg) {
			files = append(files, arg)
		} else {
			return nil, fmt.Errorf("%s is not a skill document (%v)", arg, parser.GetSupportedExtensions())
		}
	}

	return files, nil
}

func printValidationSummary(w io.Writer, summary ValidationSummary) {
	if viper.GetBool("quiet") {
		return
	}

	fmt.Fprintln(w)
	if summary.Invalid == 0 {
		style.Success(w, fmt.Sprintf("All %d document(s) are valid (%v)", summary.Total, summary.Duration))
	} else {
		style.Error(w, fmt.Sprintf("%d of %d document(s) failed validation (%v)", summary.Invalid, summary.Total, summary.Duration))
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(w, "\nDetailed results:\n")
		headers := []string{"File", "Status", "Duration"}
		rows := make([][]string, len(summary.Results))
		for i, result := range summary.Results {
			status := "valid"
			if !result.Valid {
				status = "invalid"
			}
			rows[i] = []string{result.File, status, result.Duration.String()}
		}
		printTable(w, headers, rows)
	}
}

// diffAgainstCanonical serializes the skill through the canonical writer
// and diffs the source against it.
func diffAgainstCanonical(source, canonical []byte) (bool, string) {
	if string(source) == string(canonical) {
		return true, ""
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(source), string(canonical), false)
	dmp.DiffCleanupSemantic(diffs)
	return false, dmp.DiffPrettyText(diffs)
}
