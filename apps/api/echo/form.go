package echoapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/fomu/core/form"
	"github.com/trezcool/fomu/core/user"
)

type formApi struct {
	svc      form.Service
	userSvc  user.Service
	validate *validator.Validate
}

func registerFormAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := formApi{
		svc:      opts.FormSvc,
		userSvc:  opts.UserSvc,
		validate: opts.Validate,
	}

	fg := g.Group("/forms", jwt)
	fg.POST("", api.create, staffMiddleware())

	dg := fg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/submit", api.submit)
	dg.PUT("/draft", api.saveDraft)
	dg.GET("/submission", api.retrieveSubmission)
}

// Handlers

func (api *formApi) create(ctx echo.Context) error {
	var data form.NewForm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewForm")
	}

	f, err := api.svc.CreateForm(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating form")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *formApi) retrieve(ctx echo.Context) error {
	f, err := api.svc.GetForm(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving form")
	}
	return ctx.JSON(http.StatusOK, f.Public())
}

func (api *formApi) submit(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	input, err := bindSubmissionInput(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Submit(ctx.Request().Context(), usr, ctx.Param("id"), input); err != nil {
		return errors.Wrap(err, "submitting")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (api *formApi) saveDraft(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// drafts are digital-only; JSON is the sole accepted encoding
	if !strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return form.ErrUnsupportedEncoding
	}
	var data SubmitRequest
	if err := ctx.Bind(&data); err != nil {
		return form.ErrBadPayload
	}
	input, err := data.digitalInput()
	if err != nil {
		return err
	}

	sub, err := api.svc.SaveDraft(ctx.Request().Context(), usr, ctx.Param("id"), input)
	if err != nil {
		return errors.Wrap(err, "saving draft")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *formApi) retrieveSubmission(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.svc.GetSubmission(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

// Bindings

// bindSubmissionInput decodes the submit payload from either encoding:
// JSON for digitised questionnaires, multipart/form-data for PDF uploads.
// Anything else is rejected before the pipeline runs.
func bindSubmissionInput(ctx echo.Context) (form.SubmissionInput, error) {
	contentType := ctx.Request().Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(contentType, echo.MIMEApplicationJSON):
		var data SubmitRequest
		if err := ctx.Bind(&data); err != nil {
			return nil, form.ErrBadPayload
		}
		return data.digitalInput()
	case strings.HasPrefix(contentType, echo.MIMEMultipartForm):
		return bindAttachmentInput(ctx)
	}
	return nil, form.ErrUnsupportedEncoding
}

func bindAttachmentInput(ctx echo.Context) (form.AttachmentInput, error) {
	sectionNum, err := strconv.Atoi(ctx.FormValue("sectionNumber"))
	if err != nil {
		return form.AttachmentInput{}, form.ErrBadPayload
	}

	fileHdr, err := ctx.FormFile("pdf")
	if err != nil {
		return form.AttachmentInput{}, form.ErrBadPayload
	}
	file, err := fileHdr.Open()
	if err != nil {
		return form.AttachmentInput{}, errors.Wrap(err, "opening uploaded file")
	}
	defer file.Close()

	// read one byte past the cap so the pipeline can tell "at the limit"
	// from "over it" without buffering an arbitrarily large body.
	content, err := io.ReadAll(io.LimitReader(file, form.MaxUploadBytes+1))
	if err != nil {
		return form.AttachmentInput{}, errors.Wrap(err, "reading uploaded file")
	}

	return form.AttachmentInput{
		SectionNumber: sectionNum,
		Filename:      fileHdr.Filename,
		MediaType:     fileHdr.Header.Get(echo.HeaderContentType),
		Content:       content,
	}, nil
}

type SubmitRequest struct {
	SectionNumber int                    `json:"sectionNumber"`
	Responses     map[string]interface{} `json:"responses"`
}

// digitalInput coerces loosely-typed JSON answer values to strings;
// clients send numbers for scale fields.
func (sr *SubmitRequest) digitalInput() (form.DigitalInput, error) {
	answers := make(map[string]string, len(sr.Responses))
	for key, val := range sr.Responses {
		switch v := val.(type) {
		case string:
			answers[key] = v
		case float64:
			answers[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			answers[key] = strconv.FormatBool(v)
		case nil:
			answers[key] = ""
		default:
			return form.DigitalInput{}, form.ErrBadPayload
		}
	}
	return form.DigitalInput{
		SectionNumber: sr.SectionNumber,
		Answers:       answers,
	}, nil
}
