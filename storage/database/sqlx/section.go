package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/fomu/core/section"
)

type sectionRow struct {
	Number       int         `db:"number"`
	Title        string      `db:"title"`
	Description  null.String `db:"description"`
	IsActive     bool        `db:"is_active"`
	PasscodeHash []byte      `db:"passcode_hash"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
}

func (r sectionRow) unrow() section.Section {
	return section.Section{
		Number:       r.Number,
		Title:        r.Title,
		Description:  r.Description.String,
		IsActive:     r.IsActive,
		PasscodeHash: r.PasscodeHash,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
	}
}

func rowFromSection(s section.Section) sectionRow {
	return sectionRow{
		Number:       s.Number,
		Title:        s.Title,
		Description:  null.NewString(s.Description, s.Description != ""),
		IsActive:     s.IsActive,
		PasscodeHash: s.PasscodeHash,
		CreatedAt:    null.NewTime(s.CreatedAt.UTC(), !s.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(s.UpdatedAt.UTC(), !s.UpdatedAt.IsZero()),
	}
}

type sectionRepository struct {
	db *sqlx.DB
}

var _ section.Repository = (*sectionRepository)(nil) // interface compliance check

func NewSectionRepository(db *sqlx.DB) *sectionRepository {
	return &sectionRepository{db: db}
}

func (repo sectionRepository) CreateSection(ctx context.Context, s section.Section) (section.Section, error) {
	row := rowFromSection(s)
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO section (number, title, description, is_active, passcode_hash, created_at, updated_at)
		 VALUES (:number, :title, :description, :is_active, :passcode_hash, :created_at, :updated_at)`, row)
	if err != nil {
		return section.Section{}, errors.Wrap(err, "inserting section")
	}
	return s, nil
}

func (repo sectionRepository) GetSectionByNumber(ctx context.Context, number int) (section.Section, error) {
	var row sectionRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM section WHERE number = $1`, number)
	if err != nil {
		if err == sql.ErrNoRows {
			return section.Section{}, section.ErrNotFound
		}
		return section.Section{}, errors.Wrap(err, "getting section")
	}
	return row.unrow(), nil
}

func (repo sectionRepository) QueryActiveSections(ctx context.Context) ([]section.Section, error) {
	var rows []sectionRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM section WHERE is_active ORDER BY number`)
	if err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	sections := make([]section.Section, 0, len(rows))
	for _, row := range rows {
		sections = append(sections, row.unrow())
	}
	return sections, nil
}
