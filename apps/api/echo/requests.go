package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/connection"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/user"
)

type requestApi struct {
	svc      *connection.Service
	userSvc  *user.Service
	validate *validator.Validate
}

func registerRequestAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := requestApi{
		svc:      s.deps.ConnSvc,
		userSvc:  s.deps.UserSvc,
		validate: s.deps.Validate,
	}

	rg := g.Group("/requests", jwt, contextUserMiddleware(api.userSvc))
	rg.POST("/redeem", api.redeem, s.redeemLimit())
	rg.POST("/request", api.sendRequest, s.redeemLimit())
	rg.GET("/pending", api.listPending)
	rg.GET("/mine", api.listMine)

	dg := rg.Group("/:id")
	dg.POST("/approve", api.approve)
	dg.POST("/reject", api.reject)
	dg.PATCH("/handle", api.handle)
}

func (s *Server) redeemLimit() echo.MiddlewareFunc {
	return redeemRateLimitMiddleware(s.deps.Limiter, s.deps.Logger)
}

// Handlers

func (api *requestApi) redeem(ctx echo.Context) error {
	return redeemCode(ctx, api.svc, api.userSvc, "")
}

// sendRequest is the redeem endpoint in the shape older clients post: {invitation_code, relationship, message}.
func (api *requestApi) sendRequest(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data ConnectionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConnectionRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Redeem(ctx.Request().Context(), usr.ID, connection.RedeemInput{
		Code:             data.InvitationCode,
		RelationshipType: data.Relationship,
		Message:          data.Message,
	})
	if err != nil {
		return errors.Wrap(err, "redeeming code")
	}
	return ctx.JSON(http.StatusCreated, ConnectionRequestResponse{
		RequestID: req.ID,
		Status:    req.Status,
		Message:   "Request sent successfully",
	})
}

func (api *requestApi) listPending(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := new(ListFilter)
	filter.Bind(ctx)

	reqs, err := api.svc.ListPending(ctx.Request().Context(), usr.ID, filter.TargetType, filter.TargetID)
	if err != nil {
		return errors.Wrap(err, "listing pending requests")
	}
	if reqs == nil {
		reqs = []joinrequest.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *requestApi) listMine(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := new(ListFilter)
	filter.Bind(ctx)

	reqs, err := api.svc.ListMyRequests(ctx.Request().Context(), usr.ID, filter.Status)
	if err != nil {
		return errors.Wrap(err, "listing requests")
	}
	if reqs == nil {
		reqs = []joinrequest.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *requestApi) approve(ctx echo.Context) error {
	dec, err := api.respond(ctx, connection.ActionApprove)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dec)
}

func (api *requestApi) reject(ctx echo.Context) error {
	dec, err := api.respond(ctx, connection.ActionReject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dec)
}

// handle answers in the shape older clients expect: {status, request, connection_id}.
func (api *requestApi) handle(ctx echo.Context) error {
	var data HandleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to HandleRequest")
	}
	action, err := connection.ParseAction(data.Action)
	if err != nil {
		return err
	}

	dec, err := api.respond(ctx, action)
	if err != nil {
		return err
	}

	resp := HandleResponse{Status: "rejected", Request: dec.Request}
	if action == connection.ActionApprove {
		resp.Status = "accepted"
		if dec.Outcome != nil {
			resp.ConnectionID = dec.Outcome.ConnectionID()
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *requestApi) respond(ctx echo.Context, action connection.Action) (connection.Decision, error) {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return connection.Decision{}, errors.Wrap(err, "getting context user")
	}
	dec, err := api.svc.Respond(ctx.Request().Context(), usr.ID, ctx.Param("id"), action)
	return dec, errors.Wrapf(err, "responding to request (%s)", action)
}

// redeemCode is shared by the generic redeem endpoint and the typed join endpoints.
func redeemCode(ctx echo.Context, svc *connection.Service, userSvc *user.Service, only directory.TargetType) error {
	usr, err := getContextUser(ctx, userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data connection.RedeemInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RedeemInput")
	}
	data.TargetType = only

	req, err := svc.Redeem(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "redeeming code")
	}
	return ctx.JSON(http.StatusCreated, req)
}

type (
	HandleRequest struct {
		Action string `json:"action"`
	}

	ConnectionRequest struct {
		InvitationCode string `json:"invitation_code" validate:"required"`
		Relationship   string `json:"relationship" validate:"required"`
		Message        string `json:"message"`
	}

	ConnectionRequestResponse struct {
		RequestID string             `json:"request_id"`
		Status    joinrequest.Status `json:"status"`
		Message   string             `json:"message"`
	}

	HandleResponse struct {
		Status       string              `json:"status"`
		Request      joinrequest.Request `json:"request"`
		ConnectionID string              `json:"connection_id,omitempty"`
	}
)

func (cr *ConnectionRequest) Validate(validate *validator.Validate) error {
	cr.InvitationCode = core.CleanString(cr.InvitationCode)
	cr.Relationship = core.CleanString(cr.Relationship, true /* lower */)
	return validate.Struct(cr)
}
