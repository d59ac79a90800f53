package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/fomu/core/form"
	"github.com/trezcool/fomu/core/section"
)

type sectionApi struct {
	svc      section.Service
	formSvc  form.Service
	validate *validator.Validate
}

func registerSectionAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := sectionApi{
		svc:      opts.SectionSvc,
		formSvc:  opts.FormSvc,
		validate: opts.Validate,
	}

	sg := g.Group("/sections", jwt)
	sg.GET("", api.query)

	dg := sg.Group("/:num")
	dg.POST("/unlock", api.unlock)
	dg.GET("/forms", api.queryForms)
}

// Handlers

func (api *sectionApi) query(ctx echo.Context) error {
	sections, err := api.svc.QueryActive(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying sections")
	}
	return ctx.JSON(http.StatusOK, sections)
}

func (api *sectionApi) unlock(ctx echo.Context) error {
	num, err := sectionNumber(ctx)
	if err != nil {
		return err
	}

	var data UnlockRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UnlockRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	s, err := api.svc.Unlock(ctx.Request().Context(), num, data.Passcode)
	if err != nil {
		return errors.Wrap(err, "unlocking section")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *sectionApi) queryForms(ctx echo.Context) error {
	num, err := sectionNumber(ctx)
	if err != nil {
		return err
	}

	forms, err := api.formSvc.QuerySectionForms(ctx.Request().Context(), num)
	if err != nil {
		return errors.Wrap(err, "querying section forms")
	}

	public := make([]form.Form, len(forms))
	for i, f := range forms {
		public[i] = f.Public()
	}
	return ctx.JSON(http.StatusOK, public)
}

// sectionNumber parses the `:num` path param; a non-numeric value is a 404,
// not a 400, so probing the URL space leaks nothing.
func sectionNumber(ctx echo.Context) (int, error) {
	num, err := strconv.Atoi(ctx.Param("num"))
	if err != nil || num < 1 {
		return 0, section.ErrNotFound
	}
	return num, nil
}

type UnlockRequest struct {
	Passcode string `json:"passcode" validate:"required"`
}
