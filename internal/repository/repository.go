// Package repository stores skill documents keyed by id and version and
// answers the lookups the CLI and server build on.
package repository

import (
	"errors"
	"fmt"

	"github.com/skilletai/skillet/internal/ast"
)

// ErrSkillNotFound is returned when no skill matches an id or version.
var ErrSkillNotFound = errors.New("skill not found")

// SkillRepository is the skill storage contract. Skills are immutable once
// parsed, so implementations may hand out stored pointers directly. Every
// implementation must be safe for concurrent use.
type SkillRepository interface {
	// FindByID returns the latest version of the skill or ErrSkillNotFound.
	FindByID(id string) (*ast.Skill, error)

	// FindVersion returns one exact version or ErrSkillNotFound.
	FindVersion(id, version string) (*ast.Skill, error)

	// FindAll returns the latest version of every stored skill, sorted
	// by id.
	FindAll() ([]*ast.Skill, error)

	// FindAllVersions returns every stored version of the skill from
	// oldest to newest, or ErrSkillNotFound for an unknown id.
	FindAllVersions(id string) ([]*ast.Skill, error)

	// FindByIntent returns the latest version of every skill declaring
	// the intent, matched case-insensitively, sorted by id.
	FindByIntent(intent string) ([]*ast.Skill, error)

	// Save stores the skill, replacing any record with the same id and
	// version.
	Save(skill *ast.Skill) error

	// Delete removes one version, or ErrSkillNotFound if it is absent.
	Delete(id, version string) error

	// Exists reports whether the exact id and version is stored.
	Exists(id, version string) bool
}

// checkIdentity rejects skills that cannot be keyed.
func checkIdentity(skill *ast.Skill) error {
	if skill == nil {
		return fmt.Errorf("cannot save nil skill")
	}
	if skill.ID == "" {
		return fmt.Errorf("cannot save skill without an id")
	}
	if skill.Version == "" {
		return fmt.Errorf("cannot save skill %s without a version", skill.ID)
	}
	return nil
}
