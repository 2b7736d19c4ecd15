package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/repository"
)

func seedListRepo(t *testing.T) *repository.DirRepository {
	t.Helper()

	repo, err := repository.NewDirRepository(t.TempDir())
	require.NoError(t, err)

	skills := []*ast.Skill{
		listTestSkill("greet", "1.0.0", "greet"),
		listTestSkill("greet", "1.1.0", "greet"),
		listTestSkill("digest", "0.3.0"),
	}
	for _, skill := range skills {
		require.NoError(t, repo.Save(skill))
	}
	return repo
}

func listTestSkill(id, version string, intents ...string) *ast.Skill {
	return &ast.Skill{
		ID:      id,
		Version: version,
		Intents: intents,
		Steps: []*ast.Step{{
			Name:     "respond",
			Type:     ast.StepTemplate,
			Template: "done",
		}},
	}
}

func TestFindListedSkillsLatest(t *testing.T) {
	repo := seedListRepo(t)

	skills, err := findListedSkills(repo)
	require.NoError(t, err)
	require.Len(t, skills, 2)

	versions := map[string]string{}
	for _, skill := range skills {
		versions[skill.ID] = skill.Version
	}
	assert.Equal(t, "1.1.0", versions["greet"])
	assert.Equal(t, "0.3.0", versions["digest"])
}

func TestFindListedSkillsAllVersions(t *testing.T) {
	repo := seedListRepo(t)

	listVersions = true
	t.Cleanup(func() { listVersions = false })

	skills, err := findListedSkills(repo)
	require.NoError(t, err)
	assert.Len(t, skills, 3)
}

func TestFindListedSkillsByIntent(t *testing.T) {
	repo := seedListRepo(t)

	listIntent = "greet"
	t.Cleanup(func() { listIntent = "" })

	skills, err := findListedSkills(repo)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "greet", skills[0].ID)
}

func TestPrintListings(t *testing.T) {
	out := &bytes.Buffer{}
	printListings(out, []SkillListing{
		{ID: "greet", Version: "1.1.0", Steps: 2, Intents: []string{"greet"}},
	})

	assert.Contains(t, out.String(), "greet")
	assert.Contains(t, out.String(), "1.1.0")
}

func TestPrintListingsEmpty(t *testing.T) {
	out := &bytes.Buffer{}
	printListings(out, nil)

	assert.Contains(t, out.String(), "No skills found")
}
