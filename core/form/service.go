package form

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/fomu/core"
	"github.com/trezcool/fomu/core/user"
)

// MaxUploadBytes is the hard ceiling on an uploaded PDF.
const MaxUploadBytes = 15 << 20 // 15 MiB

var (
	// errors
	ErrNotFound             = errors.New("invalid form")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrAlreadySubmitted     = errors.New("already submitted")
	ErrModalityMismatch     = errors.New("submission does not match the form kind")
	ErrBadPayload           = errors.New("bad payload")
	ErrEmptyFile            = errors.New("empty file")
	ErrPayloadTooLarge      = errors.New("file too large")
	ErrUnsupportedMediaType = errors.New("only PDFs are accepted")
	ErrUnsupportedEncoding  = errors.New(`unsupported content type (use "application/json" or "multipart/form-data")`)

	// NowFunc is mockable for tests.
	NowFunc = time.Now
)

type (
	Repository interface {
		CreateForm(ctx context.Context, f Form) (Form, error)
		GetFormByID(ctx context.Context, id string) (Form, error)
		QuerySectionForms(ctx context.Context, sectionNumber int) ([]Form, error)
		// GetSubmission returns ErrSubmissionNotFound when no record exists
		// for the (user, form) pair.
		GetSubmission(ctx context.Context, userID, formID string) (Submission, error)
		// CreateSubmission returns ErrAlreadySubmitted when the unique
		// (user_id, form_id) constraint trips: two racing submitters resolve
		// in the database, not in this process.
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)
	}

	Service interface {
		CreateForm(ctx context.Context, nf NewForm) (Form, error)
		GetForm(ctx context.Context, id string) (Form, error)
		QuerySectionForms(ctx context.Context, sectionNumber int) ([]Form, error)
		// Submit runs the full submission pipeline; on success the
		// submission is finalized and cannot be re-submitted.
		Submit(ctx context.Context, usr user.User, formID string, input SubmissionInput) error
		// SaveDraft upserts in-progress answers for a digital form without
		// finalizing; rejected once the submission is finalized.
		SaveDraft(ctx context.Context, usr user.User, formID string, input DigitalInput) (Submission, error)
		GetSubmission(ctx context.Context, usr user.User, formID string) (Submission, error)
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		logger   core.Logger
		codec    *core.AnswersCodec
		conf     *core.Config
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	codec *core.AnswersCodec,
	conf *core.Config,
	validate *validator.Validate,
) Service {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		logger:   logger,
		codec:    codec,
		conf:     conf,
		validate: validate,
	}
}

func (svc *service) CreateForm(ctx context.Context, nf NewForm) (Form, error) {
	if err := svc.validate.Struct(nf); err != nil {
		return Form{}, err
	}
	if !nf.Kind.valid() {
		return Form{}, core.NewValidationError(errors.New("invalid form kind"),
			core.FieldError{Field: "kind", Error: `kind must be "digital" or "pdf"`})
	}
	if nf.Kind == KindDigital {
		if len(nf.Schema.Fields) == 0 {
			return Form{}, core.NewValidationError(errors.New("digital forms require a schema"),
				core.FieldError{Field: "schema", Error: "digital forms require at least one field"})
		}
		if err := nf.Schema.Validate(); err != nil {
			return Form{}, err
		}
	}

	now := NowFunc().UTC()
	f := Form{
		Title:         core.CleanString(nf.Title),
		SectionNumber: nf.SectionNumber,
		IsActive:      true,
		Kind:          nf.Kind,
		Schema:        nf.Schema,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateForm(ctx, f)
}

func (svc *service) GetForm(ctx context.Context, id string) (Form, error) {
	return svc.repo.GetFormByID(ctx, id)
}

func (svc *service) QuerySectionForms(ctx context.Context, sectionNumber int) ([]Form, error) {
	return svc.repo.QuerySectionForms(ctx, sectionNumber)
}

// Submit is the submission pipeline: validate the input, resolve the form,
// guard against re-submission, grade (digital + answer key only), notify the
// study inbox (best-effort) and finally record the terminal state. Only the
// recording step can fail the call once validation passed.
func (svc *service) Submit(ctx context.Context, usr user.User, formID string, input SubmissionInput) error {
	if err := validateInput(input); err != nil {
		return err
	}

	f, err := svc.resolveForm(ctx, formID, input)
	if err != nil {
		return err
	}

	existing, err := svc.guardDuplicate(ctx, usr, f)
	if err != nil {
		return err
	}

	var grading *GradingResult
	if din, ok := input.(DigitalInput); ok && len(f.Schema.AnswerKey) > 0 {
		res := Grade(f.Schema.AnswerKey, din.Answers)
		grading = &res
	}

	svc.notify(usr, f, input, grading)

	return svc.record(ctx, usr, f, input, existing)
}

func (svc *service) SaveDraft(ctx context.Context, usr user.User, formID string, input DigitalInput) (Submission, error) {
	f, err := svc.resolveForm(ctx, formID, input)
	if err != nil {
		return Submission{}, err
	}

	existing, err := svc.guardDuplicate(ctx, usr, f)
	if err != nil {
		return Submission{}, err
	}

	now := NowFunc().UTC()
	sub := existing
	if sub.ID == "" {
		sub = Submission{
			UserID:        usr.ID,
			FormID:        f.ID,
			SectionNumber: f.SectionNumber,
			CreatedAt:     now,
		}
	}
	sub.UpdatedAt = now
	sub.Answers = input.Answers
	if err = svc.sealAnswers(&sub); err != nil {
		return Submission{}, err
	}

	if existing.ID != "" {
		return svc.repo.UpdateSubmission(ctx, sub)
	}
	return svc.repo.CreateSubmission(ctx, sub)
}

func (svc *service) GetSubmission(ctx context.Context, usr user.User, formID string) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, usr.ID, formID)
	if err != nil {
		return Submission{}, err
	}
	if err = svc.openAnswers(&sub); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

// validateInput performs the payload checks that need no form lookup.
func validateInput(input SubmissionInput) error {
	att, ok := input.(AttachmentInput)
	if !ok {
		return nil
	}
	if len(att.Content) == 0 {
		return ErrEmptyFile
	}
	if len(att.Content) > MaxUploadBytes {
		return ErrPayloadTooLarge
	}
	if att.MediaType != "application/pdf" && !strings.HasSuffix(strings.ToLower(att.Filename), ".pdf") {
		return ErrUnsupportedMediaType
	}
	return nil
}

// resolveForm fetches the form and defends against stale or replayed
// requests: a missing, inactive or section-mismatched form is reported
// identically as not found.
func (svc *service) resolveForm(ctx context.Context, formID string, input SubmissionInput) (Form, error) {
	f, err := svc.repo.GetFormByID(ctx, formID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Form{}, ErrNotFound
		}
		return Form{}, errors.Wrap(err, "getting form")
	}
	if !f.IsActive || f.SectionNumber != input.DeclaredSectionNumber() {
		return Form{}, ErrNotFound
	}
	if f.Kind != input.kind() {
		return Form{}, ErrModalityMismatch
	}
	return f, nil
}

// guardDuplicate returns the user's existing submission record (zero value
// if none); a finalized record means the pair is terminal.
func (svc *service) guardDuplicate(ctx context.Context, usr user.User, f Form) (Submission, error) {
	existing, err := svc.repo.GetSubmission(ctx, usr.ID, f.ID)
	if err != nil {
		if errors.Cause(err) == ErrSubmissionNotFound {
			return Submission{}, nil
		}
		return Submission{}, errors.Wrap(err, "getting submission")
	}
	if existing.Submitted {
		return Submission{}, ErrAlreadySubmitted
	}
	return existing, nil
}

// notify emails the submission to the study inbox. It is a convenience
// side channel: any failure is logged and swallowed, and the wait is
// bounded so a stalled transport can never block the recording step.
func (svc *service) notify(usr user.User, f Form, input SubmissionInput, grading *GradingResult) {
	if svc.conf.Email.StudyInboxEmail == "" {
		svc.logger.Error("study inbox email not configured; skipping submission notification")
		return
	}

	msg, err := buildSubmissionEmail(svc.conf, usr, f, input, grading)
	if err != nil {
		svc.logger.Error("building submission notification", err)
		return
	}

	done := make(chan error, 1)
	go func() { done <- svc.mailSvc.SendMessage(msg) }()
	select {
	case err := <-done:
		if err != nil {
			svc.logger.Error("sending submission notification", err, usr)
		}
	case <-time.After(svc.conf.Email.SendTimeout):
		svc.logger.Warn("submission notification still in flight; not waiting", usr)
	}
}

// record idempotently persists the finalized state; this is the only step
// whose failure fails the submit call.
func (svc *service) record(ctx context.Context, usr user.User, f Form, input SubmissionInput, existing Submission) error {
	now := NowFunc().UTC()
	sub := existing
	if sub.ID == "" {
		sub = Submission{
			UserID:        usr.ID,
			FormID:        f.ID,
			SectionNumber: f.SectionNumber,
			CreatedAt:     now,
		}
	}
	sub.Submitted = true
	sub.SubmittedAt = now
	sub.UpdatedAt = now

	if din, ok := input.(DigitalInput); ok {
		sub.Answers = din.Answers
		if err := svc.sealAnswers(&sub); err != nil {
			return err
		}
	}

	var err error
	if existing.ID != "" {
		_, err = svc.repo.UpdateSubmission(ctx, sub)
	} else {
		_, err = svc.repo.CreateSubmission(ctx, sub)
	}
	if err != nil {
		if errors.Cause(err) == ErrAlreadySubmitted {
			return ErrAlreadySubmitted
		}
		return errors.Wrap(err, "recording submission")
	}
	return nil
}

func (svc *service) sealAnswers(sub *Submission) error {
	if sub.Answers == nil {
		sub.EncAnswers = ""
		return nil
	}
	enc, err := svc.codec.Seal(sub.Answers)
	if err != nil {
		return errors.Wrap(err, "sealing answers")
	}
	sub.EncAnswers = enc
	return nil
}

func (svc *service) openAnswers(sub *Submission) error {
	if sub.EncAnswers == "" {
		return nil
	}
	var answers map[string]string
	if err := svc.codec.Open(sub.EncAnswers, &answers); err != nil {
		return errors.Wrap(err, "opening answers")
	}
	sub.Answers = answers
	return nil
}
