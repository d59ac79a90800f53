package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/fomu/core/form"
)

// uniqueViolation is the Postgres error code trapped on the
// (user_id, form_id) constraint.
const uniqueViolation = "23505"

type formRow struct {
	ID            string    `db:"id"`
	Title         string    `db:"title"`
	SectionNumber int       `db:"section_number"`
	IsActive      bool      `db:"is_active"`
	Kind          string    `db:"kind"`
	Schema        null.JSON `db:"form_schema"`
	CreatedAt     null.Time `db:"created_at"`
	UpdatedAt     null.Time `db:"updated_at"`
}

func (r formRow) unrow() (form.Form, error) {
	f := form.Form{
		ID:            r.ID,
		Title:         r.Title,
		SectionNumber: r.SectionNumber,
		IsActive:      r.IsActive,
		Kind:          form.Kind(r.Kind),
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}
	if len(r.Schema.JSON) > 0 {
		if err := json.Unmarshal(r.Schema.JSON, &f.Schema); err != nil {
			return form.Form{}, errors.Wrapf(err, "decoding schema of form %s", r.ID)
		}
	}
	return f, nil
}

func rowFromForm(f form.Form) (formRow, error) {
	row := formRow{
		ID:            f.ID,
		Title:         f.Title,
		SectionNumber: f.SectionNumber,
		IsActive:      f.IsActive,
		Kind:          string(f.Kind),
		CreatedAt:     null.NewTime(f.CreatedAt.UTC(), !f.CreatedAt.IsZero()),
		UpdatedAt:     null.NewTime(f.UpdatedAt.UTC(), !f.UpdatedAt.IsZero()),
	}
	if f.Kind == form.KindDigital {
		raw, err := json.Marshal(f.Schema)
		if err != nil {
			return formRow{}, errors.Wrap(err, "encoding schema")
		}
		row.Schema = null.JSONFrom(raw)
	}
	return row, nil
}

type submissionRow struct {
	ID            string      `db:"id"`
	UserID        string      `db:"user_id"`
	FormID        string      `db:"form_id"`
	SectionNumber int         `db:"section_number"`
	Submitted     bool        `db:"submitted"`
	SubmittedAt   null.Time   `db:"submitted_at"`
	Answers       null.String `db:"answers"`
	CreatedAt     null.Time   `db:"created_at"`
	UpdatedAt     null.Time   `db:"updated_at"`
}

func (r submissionRow) unrow() form.Submission {
	return form.Submission{
		ID:            r.ID,
		UserID:        r.UserID,
		FormID:        r.FormID,
		SectionNumber: r.SectionNumber,
		Submitted:     r.Submitted,
		SubmittedAt:   r.SubmittedAt.Time,
		EncAnswers:    r.Answers.String,
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}
}

func rowFromSubmission(sub form.Submission) submissionRow {
	return submissionRow{
		ID:            sub.ID,
		UserID:        sub.UserID,
		FormID:        sub.FormID,
		SectionNumber: sub.SectionNumber,
		Submitted:     sub.Submitted,
		SubmittedAt:   null.NewTime(sub.SubmittedAt.UTC(), !sub.SubmittedAt.IsZero()),
		Answers:       null.NewString(sub.EncAnswers, sub.EncAnswers != ""),
		CreatedAt:     null.NewTime(sub.CreatedAt.UTC(), !sub.CreatedAt.IsZero()),
		UpdatedAt:     null.NewTime(sub.UpdatedAt.UTC(), !sub.UpdatedAt.IsZero()),
	}
}

type formRepository struct {
	db *sqlx.DB
}

var _ form.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(db *sqlx.DB) *formRepository {
	return &formRepository{db: db}
}

func (repo formRepository) CreateForm(ctx context.Context, f form.Form) (form.Form, error) {
	f.ID = uuid.New().String()
	row, err := rowFromForm(f)
	if err != nil {
		return form.Form{}, err
	}
	_, err = repo.db.NamedExecContext(ctx,
		`INSERT INTO form (id, title, section_number, is_active, kind, form_schema, created_at, updated_at)
		 VALUES (:id, :title, :section_number, :is_active, :kind, :form_schema, :created_at, :updated_at)`, row)
	if err != nil {
		return form.Form{}, errors.Wrap(err, "inserting form")
	}
	return f, nil
}

func (repo formRepository) GetFormByID(ctx context.Context, id string) (form.Form, error) {
	if _, err := uuid.Parse(id); err != nil {
		return form.Form{}, form.ErrNotFound
	}
	var row formRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM form WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return form.Form{}, form.ErrNotFound
		}
		return form.Form{}, errors.Wrap(err, "getting form")
	}
	return row.unrow()
}

func (repo formRepository) QuerySectionForms(ctx context.Context, sectionNumber int) ([]form.Form, error) {
	var rows []formRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM form WHERE is_active AND section_number = $1 ORDER BY created_at`, sectionNumber)
	if err != nil {
		return nil, errors.Wrap(err, "querying forms")
	}
	forms := make([]form.Form, 0, len(rows))
	for _, row := range rows {
		f, err := row.unrow()
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, nil
}

func (repo formRepository) GetSubmission(ctx context.Context, userID, formID string) (form.Submission, error) {
	var row submissionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM form_response WHERE user_id = $1 AND form_id = $2`, userID, formID)
	if err != nil {
		if err == sql.ErrNoRows {
			return form.Submission{}, form.ErrSubmissionNotFound
		}
		return form.Submission{}, errors.Wrap(err, "getting submission")
	}
	return row.unrow(), nil
}

func (repo formRepository) CreateSubmission(ctx context.Context, sub form.Submission) (form.Submission, error) {
	sub.ID = uuid.New().String()
	row := rowFromSubmission(sub)
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO form_response (id, user_id, form_id, section_number, submitted, submitted_at, answers, created_at, updated_at)
		 VALUES (:id, :user_id, :form_id, :section_number, :submitted, :submitted_at, :answers, :created_at, :updated_at)`, row)
	if err != nil {
		// the second racing submitter loses on the unique constraint
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return form.Submission{}, form.ErrAlreadySubmitted
		}
		return form.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub, nil
}

func (repo formRepository) UpdateSubmission(ctx context.Context, sub form.Submission) (form.Submission, error) {
	row := rowFromSubmission(sub)
	_, err := repo.db.NamedExecContext(ctx,
		`UPDATE form_response
		 SET submitted = :submitted, submitted_at = :submitted_at, answers = :answers, updated_at = :updated_at
		 WHERE id = :id`, row)
	if err != nil {
		return form.Submission{}, errors.Wrap(err, "updating submission")
	}
	return sub, nil
}
