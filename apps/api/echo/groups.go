package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core/connection"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/membership"
	"github.com/trezcool/jumuiya/core/user"
)

type groupApi struct {
	svc     *connection.Service
	userSvc *user.Service
}

func registerGroupAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := groupApi{
		svc:     s.deps.ConnSvc,
		userSvc: s.deps.UserSvc,
	}
	ctxUser := contextUserMiddleware(api.userSvc)

	fg := g.Group("/families", jwt, ctxUser)
	fg.POST("/join", api.joinFamily, s.redeemLimit())
	fg.GET("/:id/members", api.listFamilyMembers)

	cg := g.Group("/classrooms", jwt, ctxUser)
	cg.GET("/:id/students", api.listClassroomStudents)

	g.GET("/connections", api.listConnections, jwt, ctxUser)
	g.GET("/connections/stats", api.connectionStats, jwt, ctxUser)
}

// Handlers

// joinFamily only accepts family codes.
func (api *groupApi) joinFamily(ctx echo.Context) error {
	return redeemCode(ctx, api.svc, api.userSvc, directory.TargetFamily)
}

func (api *groupApi) listFamilyMembers(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	members, err := api.svc.ListFamilyMembers(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing family members")
	}
	if members == nil {
		members = []membership.FamilyMember{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *groupApi) listClassroomStudents(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	enrs, err := api.svc.ListClassroomStudents(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing classroom students")
	}
	if enrs == nil {
		enrs = []membership.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *groupApi) listConnections(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	conns, err := api.svc.ListConnections(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing connections")
	}
	if conns == nil {
		conns = []membership.Connection{}
	}
	return ctx.JSON(http.StatusOK, conns)
}

func (api *groupApi) connectionStats(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	st, err := api.svc.Stats(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "computing connection stats")
	}
	return ctx.JSON(http.StatusOK, st)
}
