package repository

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/skilletai/skillet/internal/ast"
)

// MemoryRepository keeps skills in nested maps, id then version. It is the
// default repository for the CLI and for tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	skills map[string]map[string]*ast.Skill
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		skills: make(map[string]map[string]*ast.Skill),
	}
}

func (r *MemoryRepository) FindByID(id string) (*ast.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestLocked(id)
}

func (r *MemoryRepository) FindVersion(id, version string) (*ast.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	skill, ok := r.skills[id][version]
	if !ok {
		return nil, ErrSkillNotFound
	}
	return skill, nil
}

func (r *MemoryRepository) FindAll() ([]*ast.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.skills)
	sort.Strings(ids)

	out := make([]*ast.Skill, 0, len(ids))
	for _, id := range ids {
		if skill, err := r.latestLocked(id); err == nil {
			out = append(out, skill)
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindAllVersions(id string) ([]*ast.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.skills[id]
	if !ok || len(versions) == 0 {
		return nil, ErrSkillNotFound
	}

	ordered := lo.Keys(versions)
	sort.Slice(ordered, func(i, j int) bool {
		return ast.CompareVersions(ordered[i], ordered[j]) < 0
	})

	return lo.Map(ordered, func(version string, _ int) *ast.Skill {
		return versions[version]
	}), nil
}

func (r *MemoryRepository) FindByIntent(intent string) ([]*ast.Skill, error) {
	all, err := r.FindAll()
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(skill *ast.Skill, _ int) bool {
		return skill.HasIntent(intent)
	}), nil
}

func (r *MemoryRepository) Save(skill *ast.Skill) error {
	if err := checkIdentity(skill); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.skills[skill.ID]
	if !ok {
		versions = make(map[string]*ast.Skill)
		r.skills[skill.ID] = versions
	}
	versions[skill.Version] = skill
	return nil
}

func (r *MemoryRepository) Delete(id, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.skills[id]
	if !ok {
		return ErrSkillNotFound
	}
	if _, ok := versions[version]; !ok {
		return ErrSkillNotFound
	}

	delete(versions, version)
	if len(versions) == 0 {
		delete(r.skills, id)
	}
	return nil
}

func (r *MemoryRepository) Exists(id, version string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.skills[id][version]
	return ok
}

// latestLocked resolves the newest stored version of an id. Callers hold
// at least the read lock.
func (r *MemoryRepository) latestLocked(id string) (*ast.Skill, error) {
	versions, ok := r.skills[id]
	if !ok || len(versions) == 0 {
		return nil, ErrSkillNotFound
	}
	return versions[ast.LatestVersion(lo.Keys(versions))], nil
}
