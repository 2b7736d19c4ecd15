package cli

import (
	"path/filepath"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/parser"
)

func TestScaffoldSkill(t *testing.T) {
	newDir = t.TempDir()
	t.Cleanup(func() { newDir = "." })

	cmd, stdout, _ := newTestCommand()
	scaffoldSkill(cmd, "daily-digest")

	path := filepath.Join(newDir, "daily-digest.skill.md")
	assert.FileExists(t, path)
	assert.Contains(t, stdout.String(), "daily-digest.skill.md")

	// the scaffold must parse cleanly
	skill, err := parser.NewDocParser().ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "daily-digest", skill.ID)
	assert.Len(t, skill.Steps, 3)
}

func TestSkillIDPattern(t *testing.T) {
	assert.True(t, skillIDPattern.MatchString("greet"))
	assert.True(t, skillIDPattern.MatchString("daily-digest-2"))
	assert.False(t, skillIDPattern.MatchString("Greet"))
	assert.False(t, skillIDPattern.MatchString("-greet"))
	assert.False(t, skillIDPattern.MatchString("greet skill"))
}

func TestStarterDocument(t *testing.T) {
	snaps.MatchSnapshot(t, starterDocument("greeting"))
}
