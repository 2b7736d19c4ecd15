package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/parser"
)

const skillFileExt = ".skill.md"

// DirRepository stores each skill version as a canonical document at
// <root>/<id>/<version>.skill.md. Documents are parsed on read, so edits
// made outside the process are picked up.
type DirRepository struct {
	root   string
	parser *parser.DocParser
}

// NewDirRepository creates the repository, making the root directory if
// needed.
func NewDirRepository(root string) (*DirRepository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating skill directory %s: %w", root, err)
	}
	return &DirRepository{
		root:   root,
		parser: parser.NewDocParser(),
	}, nil
}

// Root returns the directory skills are stored under.
func (r *DirRepository) Root() string { return r.root }

func (r *DirRepository) FindByID(id string) (*ast.Skill, error) {
	versions, err := r.storedVersions(id)
	if err != nil {
		return nil, err
	}
	return r.FindVersion(id, ast.LatestVersion(versions))
}

func (r *DirRepository) FindVersion(id, version string) (*ast.Skill, error) {
	path, err := r.skillPath(id, version)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSkillNotFound
		}
		return nil, fmt.Errorf("reading skill %s@%s: %w", id, version, err)
	}

	return r.parser.ParseFile(path)
}

func (r *DirRepository) FindAll() ([]*ast.Skill, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("listing skill directory %s: %w", r.root, err)
	}

	var out []*ast.Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skill, err := r.FindByID(entry.Name())
		if err != nil {
			// A directory with no parseable documents should not take
			// the whole listing down.
			log.Warn().Err(err).Str("skill_id", entry.Name()).Msg("skipping unreadable skill")
			continue
		}
		out = append(out, skill)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *DirRepository) FindAllVersions(id string) ([]*ast.Skill, error) {
	versions, err := r.storedVersions(id)
	if err != nil {
		return nil, err
	}

	sort.Slice(versions, func(i, j int) bool {
		return ast.CompareVersions(versions[i], versions[j]) < 0
	})

	out := make([]*ast.Skill, 0, len(versions))
	for _, version := range versions {
		skill, err := r.FindVersion(id, version)
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	return out, nil
}

func (r *DirRepository) FindByIntent(intent string) ([]*ast.Skill, error) {
	all, err := r.FindAll()
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(skill *ast.Skill, _ int) bool {
		return skill.HasIntent(intent)
	}), nil
}

func (r *DirRepository) Save(skill *ast.Skill) error {
	if err := checkIdentity(skill); err != nil {
		return err
	}

	path, err := r.skillPath(skill.ID, skill.Version)
	if err != nil {
		return err
	}

	data, err := parser.Serialize(skill)
	if err != nil {
		return fmt.Errorf("serializing skill %s: %w", skill.Key(), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for skill %s: %w", skill.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing skill %s: %w", skill.Key(), err)
	}
	return nil
}

func (r *DirRepository) Delete(id, version string) error {
	path, err := r.skillPath(id, version)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrSkillNotFound
		}
		return fmt.Errorf("deleting skill %s@%s: %w", id, version, err)
	}

	// Drop the id directory once its last version is gone. Remove fails
	// on non-empty directories, which is exactly what we want.
	_ = os.Remove(filepath.Join(r.root, id))
	return nil
}

func (r *DirRepository) Exists(id, version string) bool {
	path, err := r.skillPath(id, version)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// storedVersions lists the version strings present for an id.
func (r *DirRepository) storedVersions(id string) ([]string, error) {
	if !pathSafe(id) {
		return nil, ErrSkillNotFound
	}

	entries, err := os.ReadDir(filepath.Join(r.root, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSkillNotFound
		}
		return nil, fmt.Errorf("listing versions of %s: %w", id, err)
	}

	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, skillFileExt) {
			continue
		}
		versions = append(versions, strings.TrimSuffix(name, skillFileExt))
	}
	if len(versions) == 0 {
		return nil, ErrSkillNotFound
	}
	return versions, nil
}

// skillPath maps an identity to its document path, rejecting ids and
// versions that would escape the root.
func (r *DirRepository) skillPath(id, version string) (string, error) {
	if !pathSafe(id) || !pathSafe(version) {
		return "", fmt.Errorf("invalid skill identity %s@%s", id, version)
	}
	return filepath.Join(r.root, id, version+skillFileExt), nil
}

// pathSafe reports whether the value can be used as a single path element.
func pathSafe(value string) bool {
	return value != "" &&
		value != "." &&
		value != ".." &&
		!strings.ContainsAny(value, `/\`)
}
