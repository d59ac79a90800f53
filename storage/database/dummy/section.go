package dummydb

import (
	"context"
	"sort"
	"sync"

	"github.com/trezcool/fomu/core/section"
)

// SectionRepository is an in-memory section.Repository for tests and local hacking.
type SectionRepository struct {
	mu       sync.RWMutex
	sections map[int]section.Section
}

var _ section.Repository = (*SectionRepository)(nil)

func NewSectionRepository() *SectionRepository {
	return &SectionRepository{sections: make(map[int]section.Section)}
}

func (repo *SectionRepository) CreateSection(_ context.Context, s section.Section) (section.Section, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.sections[s.Number] = s
	return s, nil
}

func (repo *SectionRepository) GetSectionByNumber(_ context.Context, number int) (section.Section, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	s, ok := repo.sections[number]
	if !ok {
		return section.Section{}, section.ErrNotFound
	}
	return s, nil
}

func (repo *SectionRepository) QueryActiveSections(_ context.Context) ([]section.Section, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	sections := make([]section.Section, 0, len(repo.sections))
	for _, s := range repo.sections {
		if s.IsActive {
			sections = append(sections, s)
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Number < sections[j].Number })
	return sections, nil
}
