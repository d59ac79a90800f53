package form

import (
	"bytes"
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/fomu/core"
	"github.com/trezcool/fomu/core/user"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(io.Discard, "", 0)
}

// --- test doubles ---

type memRepo struct {
	mu          sync.Mutex
	forms       map[string]Form
	submissions map[string]Submission // keyed by userID+"/"+formID
	nextID      int
	failWrites  bool
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		forms:       make(map[string]Form),
		submissions: make(map[string]Submission),
	}
}

func (r *memRepo) CreateForm(_ context.Context, f Form) (Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	f.ID = string(rune('a'+r.nextID)) + "-form"
	r.forms[f.ID] = f
	return f, nil
}

func (r *memRepo) GetFormByID(_ context.Context, id string) (Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[id]
	if !ok {
		return Form{}, ErrNotFound
	}
	return f, nil
}

func (r *memRepo) QuerySectionForms(_ context.Context, sectionNumber int) ([]Form, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Form
	for _, f := range r.forms {
		if f.IsActive && f.SectionNumber == sectionNumber {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memRepo) GetSubmission(_ context.Context, userID, formID string) (Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.submissions[userID+"/"+formID]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	return sub, nil
}

func (r *memRepo) CreateSubmission(_ context.Context, sub Submission) (Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return Submission{}, errors.New("db down")
	}
	key := sub.UserID + "/" + sub.FormID
	if _, exists := r.submissions[key]; exists {
		return Submission{}, ErrAlreadySubmitted // unique (user_id, form_id)
	}
	r.nextID++
	sub.ID = string(rune('a'+r.nextID)) + "-sub"
	r.submissions[key] = sub
	return sub, nil
}

func (r *memRepo) UpdateSubmission(_ context.Context, sub Submission) (Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return Submission{}, errors.New("db down")
	}
	r.submissions[sub.UserID+"/"+sub.FormID] = sub
	return sub, nil
}

type mailMock struct {
	mu    sync.Mutex
	sent  []*core.EmailMessage
	fail  bool
	block chan struct{} // when set, SendMessage stalls until it is closed
}

var _ core.EmailService = (*mailMock)(nil)

func (m *mailMock) SendMessage(msg *core.EmailMessage) error {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("transport down")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailMock) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mailMock) lastSent() *core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	svc  Service
	repo *memRepo
	mail *mailMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conf := core.NewTestConfig()
	codec, err := core.NewAnswersCodec(conf.AnswersSecretKey)
	require.NoError(t, err)
	validate, _ := core.NewValidator()

	repo := newMemRepo()
	mail := &mailMock{}
	svc := NewService(repo, mail, core.NewStdLogger(testLogger(t)), codec, conf, validate)
	return &fixture{svc: svc, repo: repo, mail: mail}
}

var testUser = user.User{ID: "u1", Name: "Awa Ndiaye", Username: "awa", Email: "awa@test.local", IsActive: true}

func (fx *fixture) digitalForm(t *testing.T, sectionNumber int, answerKey map[string]string) Form {
	t.Helper()
	f, err := fx.svc.CreateForm(context.Background(), NewForm{
		Title:         "Listening Quiz",
		SectionNumber: sectionNumber,
		Kind:          KindDigital,
		Schema: Schema{
			Version: 1,
			Fields: []Field{
				RadioField{baseField: baseField{FieldKey: "q1", Label: "Pick one"}, Choices: []string{"A", "B"}},
				RadioField{baseField: baseField{FieldKey: "q2", Label: "Pick another"}, Choices: []string{"b", "c"}},
				TextField{baseField: baseField{FieldKey: "q3", Label: "Comments"}},
			},
			AnswerKey: answerKey,
		},
	})
	require.NoError(t, err)
	return f
}

func (fx *fixture) pdfForm(t *testing.T, sectionNumber int) Form {
	t.Helper()
	f, err := fx.svc.CreateForm(context.Background(), NewForm{
		Title:         "Consent Form",
		SectionNumber: sectionNumber,
		Kind:          KindPDF,
	})
	require.NoError(t, err)
	return f
}

func pdfInput(section, size int) AttachmentInput {
	return AttachmentInput{
		SectionNumber: section,
		Filename:      "consent.pdf",
		MediaType:     "application/pdf",
		Content:       bytes.Repeat([]byte{0x25}, size),
	}
}

// --- tests ---

func TestService_Submit_digital(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.digitalForm(t, 1, map[string]string{"q1": "B", "q2": "c"})

	err := fx.svc.Submit(ctx, testUser, f.ID, DigitalInput{
		SectionNumber: 1,
		Answers:       map[string]string{"q1": "b", "q2": "C", "q3": "all good"},
	})
	require.NoError(t, err)

	sub, err := fx.svc.GetSubmission(ctx, testUser, f.ID)
	require.NoError(t, err)
	assert.True(t, sub.Submitted)
	assert.False(t, sub.SubmittedAt.IsZero())
	assert.Equal(t, "all good", sub.Answers["q3"])

	// persisted answers are sealed
	raw := fx.repo.submissions[testUser.ID+"/"+f.ID]
	assert.NotEmpty(t, raw.EncAnswers)
	assert.NotContains(t, raw.EncAnswers, "all good")

	// notification carries the grading report and the raw answers
	require.Equal(t, 1, fx.mail.sentCount())
	msg := fx.mail.lastSent()
	assert.Contains(t, msg.Subject, "New submission: Listening Quiz (Section 1)")
	assert.Contains(t, msg.HTMLContent, "Score: 2/2 (100%)")
	assert.Contains(t, msg.HTMLContent, "all good")
}

func TestService_Submit_attachment(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.pdfForm(t, 2)

	err := fx.svc.Submit(ctx, testUser, f.ID, pdfInput(2, 128))
	require.NoError(t, err)

	sub, err := fx.svc.GetSubmission(ctx, testUser, f.ID)
	require.NoError(t, err)
	assert.True(t, sub.Submitted)
	assert.Nil(t, sub.Answers)

	require.Equal(t, 1, fx.mail.sentCount())
	msg := fx.mail.lastSent()
	assert.Contains(t, msg.Subject, "PDF submission")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "consent.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
}

func TestService_Submit_terminalState(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.digitalForm(t, 1, nil)
	input := DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "A"}}

	require.NoError(t, fx.svc.Submit(ctx, testUser, f.ID, input))

	// a second attempt is always rejected, regardless of payload
	assert.Equal(t, ErrAlreadySubmitted, fx.svc.Submit(ctx, testUser, f.ID, input))
	assert.Equal(t, ErrAlreadySubmitted, fx.svc.Submit(ctx, testUser, f.ID,
		DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "B"}}))
	assert.Equal(t, 1, fx.mail.sentCount())

	// another participant is unaffected
	other := user.User{ID: "u2", Email: "other@test.local"}
	assert.NoError(t, fx.svc.Submit(ctx, other, f.ID, input))
}

func TestService_Submit_draftFinalizedInPlace(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.digitalForm(t, 1, nil)

	draft, err := fx.svc.SaveDraft(ctx, testUser, f.ID, DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "A"}})
	require.NoError(t, err)
	assert.False(t, draft.Submitted)

	require.NoError(t, fx.svc.Submit(ctx, testUser, f.ID,
		DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "B", "q3": "done"}}))

	sub, err := fx.svc.GetSubmission(ctx, testUser, f.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, sub.ID) // updated in place, not a second row
	assert.True(t, sub.Submitted)
	assert.Equal(t, "B", sub.Answers["q1"])

	// finalized record also rejects further drafts
	_, err = fx.svc.SaveDraft(ctx, testUser, f.ID, DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "C"}})
	assert.Equal(t, ErrAlreadySubmitted, err)
}

func TestService_Submit_modalityMismatch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	digital := fx.digitalForm(t, 1, nil)
	pdf := fx.pdfForm(t, 1)

	err := fx.svc.Submit(ctx, testUser, digital.ID, pdfInput(1, 128))
	assert.Equal(t, ErrModalityMismatch, err)

	err = fx.svc.Submit(ctx, testUser, pdf.ID, DigitalInput{SectionNumber: 1, Answers: map[string]string{}})
	assert.Equal(t, ErrModalityMismatch, err)

	assert.Equal(t, 0, fx.mail.sentCount())
}

func TestService_Submit_formResolution(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.digitalForm(t, 2, nil)

	t.Run("unknown form", func(t *testing.T) {
		err := fx.svc.Submit(ctx, testUser, "nope", DigitalInput{SectionNumber: 2})
		assert.Equal(t, ErrNotFound, errors.Cause(err))
	})
	t.Run("section mismatch", func(t *testing.T) {
		err := fx.svc.Submit(ctx, testUser, f.ID, DigitalInput{SectionNumber: 1})
		assert.Equal(t, ErrNotFound, err)
	})
	t.Run("inactive form", func(t *testing.T) {
		inactive := fx.repo.forms[f.ID]
		inactive.IsActive = false
		fx.repo.forms[f.ID] = inactive
		defer func() {
			inactive.IsActive = true
			fx.repo.forms[f.ID] = inactive
		}()

		err := fx.svc.Submit(ctx, testUser, f.ID, DigitalInput{SectionNumber: 2})
		assert.Equal(t, ErrNotFound, err)
	})
}

func TestService_Submit_attachmentBoundaries(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.pdfForm(t, 1)

	t.Run("empty file", func(t *testing.T) {
		err := fx.svc.Submit(ctx, testUser, f.ID, pdfInput(1, 0))
		assert.Equal(t, ErrEmptyFile, err)
	})
	t.Run("one byte over the cap", func(t *testing.T) {
		err := fx.svc.Submit(ctx, testUser, f.ID, pdfInput(1, MaxUploadBytes+1))
		assert.Equal(t, ErrPayloadTooLarge, err)
	})
	t.Run("exactly at the cap", func(t *testing.T) {
		assert.NoError(t, fx.svc.Submit(ctx, testUser, f.ID, pdfInput(1, MaxUploadBytes)))
	})

	t.Run("pdf extension without media type", func(t *testing.T) {
		in := AttachmentInput{SectionNumber: 1, Filename: "x.PDF", Content: []byte("%PDF")}
		assert.NoError(t, fx.svc.Submit(ctx, user.User{ID: "u3"}, f.ID, in))
	})
	t.Run("pdf media type with other extension", func(t *testing.T) {
		in := AttachmentInput{SectionNumber: 1, Filename: "x.txt", MediaType: "application/pdf", Content: []byte("%PDF")}
		assert.NoError(t, fx.svc.Submit(ctx, user.User{ID: "u4"}, f.ID, in))
	})
	t.Run("neither media type nor extension", func(t *testing.T) {
		in := AttachmentInput{SectionNumber: 1, Filename: "x.txt", MediaType: "text/plain", Content: []byte("hi")}
		err := fx.svc.Submit(ctx, user.User{ID: "u5"}, f.ID, in)
		assert.Equal(t, ErrUnsupportedMediaType, err)
	})
}

func TestService_Submit_notificationIsolation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.digitalForm(t, 1, nil)

	fx.mail.fail = true
	err := fx.svc.Submit(ctx, testUser, f.ID, DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "A"}})
	require.NoError(t, err) // transport failure never fails the submit

	sub, err := fx.svc.GetSubmission(ctx, testUser, f.ID)
	require.NoError(t, err)
	assert.True(t, sub.Submitted)
}

func TestService_Submit_stalledTransport(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	conf := core.NewTestConfig()
	conf.Email.SendTimeout = 20 * time.Millisecond
	codec, err := core.NewAnswersCodec(conf.AnswersSecretKey)
	require.NoError(t, err)
	validate, _ := core.NewValidator()
	svc := NewService(fx.repo, fx.mail, core.NewStdLogger(testLogger(t)), codec, conf, validate)

	f := fx.digitalForm(t, 1, nil)
	fx.mail.block = make(chan struct{})
	defer close(fx.mail.block)

	start := time.Now()
	err = svc.Submit(ctx, testUser, f.ID, DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "A"}})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second) // gave up on the send, did not hang

	sub, err := svc.GetSubmission(ctx, testUser, f.ID)
	require.NoError(t, err)
	assert.True(t, sub.Submitted)
}

func TestService_Submit_missingEmailConfig(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	conf := core.NewTestConfig()
	conf.Email.StudyInboxEmail = ""
	codec, err := core.NewAnswersCodec(conf.AnswersSecretKey)
	require.NoError(t, err)
	validate, _ := core.NewValidator()
	svc := NewService(fx.repo, fx.mail, core.NewStdLogger(testLogger(t)), codec, conf, validate)

	f := fx.digitalForm(t, 1, nil)
	err = svc.Submit(ctx, testUser, f.ID, DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "A"}})
	require.NoError(t, err)
	assert.Equal(t, 0, fx.mail.sentCount())
}

func TestService_Submit_persistenceFailure(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.digitalForm(t, 1, nil)

	fx.repo.failWrites = true
	err := fx.svc.Submit(ctx, testUser, f.ID, DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "A"}})
	require.Error(t, err)

	// safe to retry: the operation is idempotent
	fx.repo.failWrites = false
	assert.NoError(t, fx.svc.Submit(ctx, testUser, f.ID, DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "A"}}))
}

func TestService_Submit_noGradingWithoutAnswerKey(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.digitalForm(t, 1, nil)

	require.NoError(t, fx.svc.Submit(ctx, testUser, f.ID,
		DigitalInput{SectionNumber: 1, Answers: map[string]string{"q1": "A"}}))

	require.Equal(t, 1, fx.mail.sentCount())
	assert.NotContains(t, fx.mail.lastSent().HTMLContent, "Score:")
}

func TestService_Submit_escapesUserText(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f := fx.digitalForm(t, 1, nil)

	evil := user.User{ID: "u6", Name: `<script>alert("x")</script>`, Email: "evil@test.local"}
	require.NoError(t, fx.svc.Submit(ctx, evil, f.ID,
		DigitalInput{SectionNumber: 1, Answers: map[string]string{"q3": `<img src=x onerror=alert(1)>`}}))

	html := fx.mail.lastSent().HTMLContent
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<img")
}

func TestService_CreateForm_validation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	t.Run("digital requires schema", func(t *testing.T) {
		_, err := fx.svc.CreateForm(ctx, NewForm{Title: "Quiz", SectionNumber: 1, Kind: KindDigital})
		assert.IsType(t, &core.ValidationError{}, err)
	})
	t.Run("invalid kind", func(t *testing.T) {
		_, err := fx.svc.CreateForm(ctx, NewForm{Title: "Quiz", SectionNumber: 1, Kind: "paper"})
		assert.IsType(t, &core.ValidationError{}, err)
	})
	t.Run("answer key stripped from public view", func(t *testing.T) {
		f := fx.digitalForm(t, 1, map[string]string{"q1": "A"})
		assert.Nil(t, f.Public().Schema.AnswerKey)
		assert.NotNil(t, f.Schema.AnswerKey)
	})
}
