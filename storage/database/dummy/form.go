package dummydb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/fomu/core/form"
)

// FormRepository is an in-memory form.Repository for tests and local hacking.
// It enforces the same (user, form) uniqueness the SQL schema does.
type FormRepository struct {
	mu          sync.RWMutex
	forms       map[string]form.Form
	submissions map[string]form.Submission // by userID+"/"+formID
}

var _ form.Repository = (*FormRepository)(nil)

func NewFormRepository() *FormRepository {
	return &FormRepository{
		forms:       make(map[string]form.Form),
		submissions: make(map[string]form.Submission),
	}
}

func (repo *FormRepository) CreateForm(_ context.Context, f form.Form) (form.Form, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	f.ID = uuid.New().String()
	repo.forms[f.ID] = f
	return f, nil
}

func (repo *FormRepository) GetFormByID(_ context.Context, id string) (form.Form, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	f, ok := repo.forms[id]
	if !ok {
		return form.Form{}, form.ErrNotFound
	}
	return f, nil
}

func (repo *FormRepository) QuerySectionForms(_ context.Context, sectionNumber int) ([]form.Form, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	var forms []form.Form
	for _, f := range repo.forms {
		if f.IsActive && f.SectionNumber == sectionNumber {
			forms = append(forms, f)
		}
	}
	sort.Slice(forms, func(i, j int) bool { return forms[i].CreatedAt.Before(forms[j].CreatedAt) })
	return forms, nil
}

func (repo *FormRepository) GetSubmission(_ context.Context, userID, formID string) (form.Submission, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	sub, ok := repo.submissions[userID+"/"+formID]
	if !ok {
		return form.Submission{}, form.ErrSubmissionNotFound
	}
	return sub, nil
}

func (repo *FormRepository) CreateSubmission(_ context.Context, sub form.Submission) (form.Submission, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	key := sub.UserID + "/" + sub.FormID
	if _, exists := repo.submissions[key]; exists {
		return form.Submission{}, form.ErrAlreadySubmitted
	}
	sub.ID = uuid.New().String()
	repo.submissions[key] = sub
	return sub, nil
}

func (repo *FormRepository) UpdateSubmission(_ context.Context, sub form.Submission) (form.Submission, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.submissions[sub.UserID+"/"+sub.FormID] = sub
	return sub, nil
}
