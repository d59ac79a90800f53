package form

import (
	"time"
)

// Kind is a form's modality: digitised questionnaire or PDF upload slot.
type Kind string

const (
	KindDigital Kind = "digital"
	KindPDF     Kind = "pdf"
)

func (k Kind) valid() bool { return k == KindDigital || k == KindPDF }

type Form struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	SectionNumber int       `json:"section_number"`
	IsActive      bool      `json:"is_active"`
	Kind          Kind      `json:"kind"`
	Schema        Schema    `json:"schema"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// Public returns a copy safe to expose to participants: the answer key
// never leaves the backend.
func (f Form) Public() Form {
	f.Schema.AnswerKey = nil
	return f
}

type NewForm struct {
	Title         string `json:"title" validate:"required"`
	SectionNumber int    `json:"section_number" validate:"required,min=1"`
	Kind          Kind   `json:"kind" validate:"required"`
	Schema        Schema `json:"schema"`
}

// Submission is the at-most-one-per-(user, form) completion record.
// Once Submitted is set it is terminal: the pipeline rejects any further
// submit attempt for the pair.
type Submission struct {
	ID            string            `json:"id"`
	UserID        string            `json:"-"`
	FormID        string            `json:"form_id"`
	SectionNumber int               `json:"section_number"`
	Submitted     bool              `json:"submitted"`
	SubmittedAt   time.Time         `json:"submitted_at,omitempty"` // UTC
	Answers       map[string]string `json:"answers,omitempty"`
	// EncAnswers is the sealed at-rest form of Answers; repositories only
	// ever see this field.
	EncAnswers string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// SubmissionInput is the transient, tagged submission payload;
// one variant per modality.
type SubmissionInput interface {
	DeclaredSectionNumber() int
	kind() Kind
}

// DigitalInput carries the answers of a digitised questionnaire.
// Per-field completeness is the client layer's concern; the pipeline
// accepts an empty mapping.
type DigitalInput struct {
	SectionNumber int
	Answers       map[string]string
}

// AttachmentInput carries an uploaded, filled PDF.
type AttachmentInput struct {
	SectionNumber int
	Filename      string
	MediaType     string
	Content       []byte
}

var (
	_ SubmissionInput = DigitalInput{}
	_ SubmissionInput = AttachmentInput{}
)

func (in DigitalInput) DeclaredSectionNumber() int    { return in.SectionNumber }
func (in DigitalInput) kind() Kind                    { return KindDigital }
func (in AttachmentInput) DeclaredSectionNumber() int { return in.SectionNumber }
func (in AttachmentInput) kind() Kind                 { return KindPDF }
