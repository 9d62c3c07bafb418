package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/joinrequest"
)

const (
	targetTypeParam = "target_type"
	targetIDParam   = "target_id"
	statusParam     = "status"
)

// ListFilter narrows down list endpoints. Every field is optional.
type ListFilter struct {
	TargetType directory.TargetType
	TargetID   string
	Status     joinrequest.Status
}

func (f *ListFilter) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	f.TargetType = directory.TargetType(core.CleanString(data.Get(targetTypeParam), true /* lower */))
	f.TargetID = core.CleanString(data.Get(targetIDParam), true /* lower */)
	f.Status = joinrequest.Status(core.CleanString(data.Get(statusParam), true /* lower */))
}
