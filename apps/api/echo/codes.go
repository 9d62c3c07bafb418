package echoapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core/connection"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/user"
)

type codeApi struct {
	svc     *connection.Service
	userSvc *user.Service
}

func registerCodeAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := codeApi{
		svc:     s.deps.ConnSvc,
		userSvc: s.deps.UserSvc,
	}

	// looking a code up needs no account
	g.GET("/codes/:code", api.retrieve)

	cg := g.Group("/codes", jwt, contextUserMiddleware(api.userSvc))
	cg.POST("", api.create)
	cg.GET("/mine", api.listMine)
	cg.DELETE("/:code", api.revoke)
}

// Handlers

func (api *codeApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data invitation.NewCode
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCode")
	}

	summary, err := api.svc.CreateCode(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating code")
	}
	return ctx.JSON(http.StatusCreated, summary)
}

func (api *codeApi) listMine(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := new(ListFilter)
	filter.Bind(ctx)

	codes, err := api.svc.ListMyCodes(ctx.Request().Context(), usr.ID, filter.TargetType)
	if err != nil {
		return errors.Wrap(err, "listing codes")
	}
	if codes == nil {
		codes = []invitation.Summary{}
	}
	return ctx.JSON(http.StatusOK, codes)
}

func (api *codeApi) retrieve(ctx echo.Context) error {
	summary, err := api.svc.LookupCode(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "looking up code")
	}
	return ctx.JSON(http.StatusOK, summary)
}

// revoke accepts a code id or the code value itself.
func (api *codeApi) revoke(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ref := ctx.Param("code")
	if _, err = uuid.Parse(ref); err != nil {
		found, err := api.svc.LookupCode(ctx.Request().Context(), ref)
		if err != nil {
			return errors.Wrap(err, "looking up code")
		}
		ref = found.ID
	}

	summary, err := api.svc.RevokeCode(ctx.Request().Context(), usr.ID, ref)
	if err != nil {
		return errors.Wrap(err, "revoking code")
	}
	return ctx.JSON(http.StatusOK, summary)
}
