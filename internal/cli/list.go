package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/repository"
	"github.com/skilletai/skillet/internal/style"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills in a directory",
	Long: `List the skills stored in a directory repository, one line per skill
showing the latest version.

Examples:
  skillet list --dir ./skills                  # All skills
  skillet list --dir ./skills --intent greet   # Only skills declaring an intent
  skillet list --dir ./skills --versions       # Every stored version`,
	Run: func(cmd *cobra.Command, args []string) {
		listSkills(cmd)
	},
}

var (
	listDir      string
	listIntent   string
	listVersions bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listDir, "dir", ".", "directory containing skill documents")
	listCmd.Flags().StringVar(&listIntent, "intent", "", "only list skills declaring this intent")
	listCmd.Flags().BoolVar(&listVersions, "versions", false, "list every stored version, not only the latest")
}

// SkillListing is one row of list output.
type SkillListing struct {
	ID          string   `json:"id" yaml:"id"`
	Version     string   `json:"version" yaml:"version"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Intents     []string `json:"intents,omitempty" yaml:"intents,omitempty"`
	Steps       int      `json:"steps" yaml:"steps"`
}

func listSkills(cmd *cobra.Command) {
	repo, err := repository.NewDirRepository(listDir)
	if err != nil {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("Failed to open %s: %v", listDir, err))
		os.Exit(1)
	}

	skills, err := findListedSkills(repo)
	if err != nil {
		style.Error(cmd.ErrOrStderr(), fmt.Sprintf("Failed to list skills: %v", err))
		os.Exit(1)
	}

	listings := lo.Map(skills, func(skill *ast.Skill, _ int) SkillListing {
		return SkillListing{
			ID:          skill.ID,
			Version:     skill.Version,
			Description: skill.Description,
			Intents:     skill.Intents,
			Steps:       len(skill.Steps),
		}
	})

	printResult(cmd.OutOrStdout(), listings, func(w io.Writer) {
		printListings(w, listings)
	})
}

func findListedSkills(repo repository.SkillRepository) ([]*ast.Skill, error) {
	if listIntent != "" {
		return repo.FindByIntent(listIntent)
	}

	latest, err := repo.FindAll()
	if err != nil {
		return nil, err
	}
	if !listVersions {
		return latest, nil
	}

	var all []*ast.Skill
	for _, skill := range latest {
		versions, err := repo.FindAllVersions(skill.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, versions...)
	}
	return all, nil
}

func printListings(w io.Writer, listings []SkillListing) {
	if len(listings) == 0 {
		style.Warning(w, "No skills found")
		return
	}

	headers := []string{"ID", "Version", "Steps", "Intents", "Description"}
	rows := make([][]string, len(listings))
	for i, listing := range listings {
		rows[i] = []string{
			listing.ID,
			listing.Version,
			fmt.Sprintf("%d", listing.Steps),
			strings.Join(listing.Intents, ", "),
			listing.Description,
		}
	}
	printTable(w, headers, rows)
}
