package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/parser"
)

func TestValidateSingleFileValid(t *testing.T) {
	result := validateSingleFile(parser.NewDocParser(), filepath.Join("testdata", "greet.skill.md"))

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateSingleFileInvalid(t *testing.T) {
	result := validateSingleFile(parser.NewDocParser(), filepath.Join("testdata", "broken.skill.md"))

	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Error(t, result.parseError)
}

func TestValidateSingleFileMalformedTemplates(t *testing.T) {
	result := validateSingleFile(parser.NewDocParser(), filepath.Join("testdata", "drafty.skill.md"))

	require.False(t, result.Valid, "unparsable templates and conditions must fail validation, not execution")
	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "unclosed '{{#for")
	assert.Contains(t, joined, "invalid when condition")
}

func TestValidateSingleFileCanonical(t *testing.T) {
	validateCanonical = true
	t.Cleanup(func() { validateCanonical = false })

	result := validateSingleFile(parser.NewDocParser(), filepath.Join("testdata", "greet.skill.md"))

	assert.True(t, result.Valid)
	// the fixture carries prose and comment lines the canonical writer
	// drops, so drift is expected
	if !result.Canonical {
		assert.NotEmpty(t, result.Diff)
	}
}

func TestDiffAgainstCanonical(t *testing.T) {
	canonical, diff := diffAgainstCanonical([]byte("same"), []byte("same"))
	assert.True(t, canonical)
	assert.Empty(t, diff)

	canonical, diff = diffAgainstCanonical([]byte("left"), []byte("right"))
	assert.False(t, canonical)
	assert.NotEmpty(t, diff)
}

func TestCollectFilesSingle(t *testing.T) {
	files, err := collectFiles([]string{filepath.Join("testdata", "greet.skill.md")}, false)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCollectFilesDirectoryWithoutRecursive(t *testing.T) {
	_, err := collectFiles([]string{"testdata"}, false)
	assert.ErrorContains(t, err, "--recursive")
}

func TestCollectFilesRecursive(t *testing.T) {
	files, err := collectFiles([]string{"testdata"}, true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 3)
	for _, file := range files {
		assert.True(t, parser.IsSkillFile(file), file)
	}
}

func TestCollectFilesRejectsOtherExtensions(t *testing.T) {
	_, err := collectFiles([]string{filepath.Join("testdata", "missing.txt")}, false)
	assert.Error(t, err)
}
