package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skilletai/skillet/internal/style"
)

// newCmd represents the new command
var newCmd = &cobra.Command{
	Use:   "new [skill-id]",
	Short: "Scaffold a new skill document",
	Long: `Create a starter skill document with frontmatter, input and output
schemas and one step of each kind, ready to edit.

Examples:
  skillet new greeting                 # Creates greeting.skill.md
  skillet new greeting --dir ./skills  # Creates skills/greeting.skill.md
  skillet new greeting --force         # Overwrite an existing file`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scaffoldSkill(cmd, args[0])
	},
}

var (
	newDir   string
	newForce bool
)

var skillIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

func init() {
	rootCmd.AddCommand(newCmd)

	newCmd.Flags().StringVar(&newDir, "dir", ".", "directory to create the document in")
	newCmd.Flags().BoolVar(&newForce, "force", false, "overwrite an existing document")
}

func scaffoldSkill(cmd *cobra.Command, id string) {
	if !skillIDPattern.MatchString(id) {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("invalid skill id %q: use lowercase letters, digits and dashes", id))
		os.Exit(1)
	}

	path := filepath.Join(newDir, id+".skill.md")
	if _, err := os.Stat(path); err == nil && !newForce {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("%s already exists, use --force to overwrite", path))
		os.Exit(1)
	}

	if err := os.MkdirAll(newDir, 0o755); err != nil {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("creating %s: %v", newDir, err))
		os.Exit(1)
	}

	doc := starterDocument(id)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("writing %s: %v", path, err))
		os.Exit(1)
	}

	style.Success(cmd.OutOrStdout(), fmt.Sprintf("Created %s", path))
	fmt.Fprintf(cmd.OutOrStdout(), "  Validate with: skillet validate %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "  Run with:      skillet run %s --input name=world\n", path)
}

// starterDocument renders the scaffold for a new skill id.
func starterDocument(id string) string {
	title := strings.ReplaceAll(id, "-", " ")

	return fmt.Sprintf(`---
id: %s
version: "0.1.0"
description: Describe what the %s skill does
intents:
  - %s
input:
  name:
    type: string
    description: Who the skill addresses
output:
  format: json
  fields:
    result: string
---

Explain the skill here. Prose outside step headings is ignored by the
runtime, so use it for documentation.

## greet

`+"```yaml"+`
type: template
var: greeting
template: "hello {{name}}"
`+"```"+`

## confirm

`+"```yaml"+`
type: await
message: "Send the greeting {{greeting}}?"
inputs:
  approved: boolean
`+"```"+`

## deliver

`+"```yaml"+`
type: template
var: result
when: approved == true
template: "{{greeting}}"
`+"```"+`
`, id, title, title)
}
