package section

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/fomu/core"
)

var (
	// errors
	ErrNotFound      = errors.New("section not found")
	ErrSectionExists = errors.New("a section with this number already exists")

	errBadPasscode = errors.New("incorrect passcode")
)

type (
	Repository interface {
		CreateSection(ctx context.Context, s Section) (Section, error)
		GetSectionByNumber(ctx context.Context, number int) (Section, error)
		QueryActiveSections(ctx context.Context) ([]Section, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewSection) (Section, error)
		QueryActive(ctx context.Context) ([]Section, error)
		// Unlock checks the passcode for an active section; a wrong passcode
		// yields a ValidationError, never a hint at which part failed.
		Unlock(ctx context.Context, number int, passcode string) (Section, error)
	}

	service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{
		repo:     repo,
		validate: validate,
	}
}

func (svc *service) Create(ctx context.Context, ns NewSection) (Section, error) {
	if err := svc.validate.Struct(ns); err != nil {
		return Section{}, err
	}
	if _, err := svc.repo.GetSectionByNumber(ctx, ns.Number); err == nil {
		return Section{}, core.NewValidationError(ErrSectionExists, core.FieldError{Field: "number", Error: ErrSectionExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return Section{}, err
	}

	now := time.Now().UTC()
	s := Section{
		Number:      ns.Number,
		Title:       core.CleanString(ns.Title),
		Description: core.CleanString(ns.Description),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.SetPasscode(ns.Passcode); err != nil {
		return Section{}, errors.Wrap(err, "hashing passcode")
	}
	return svc.repo.CreateSection(ctx, s)
}

func (svc *service) QueryActive(ctx context.Context) ([]Section, error) {
	return svc.repo.QueryActiveSections(ctx)
}

func (svc *service) Unlock(ctx context.Context, number int, passcode string) (Section, error) {
	s, err := svc.repo.GetSectionByNumber(ctx, number)
	if err != nil {
		return Section{}, err
	}
	if !s.IsActive {
		return Section{}, ErrNotFound
	}
	if err = s.CheckPasscode(passcode); err != nil {
		return Section{}, core.NewValidationError(errBadPasscode, core.FieldError{Field: "passcode", Error: errBadPasscode.Error()})
	}
	return s, nil
}
