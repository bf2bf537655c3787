package ginserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/roles"
)

type RoleHTTP interface {
	Assign(c *gin.Context)
}

type RoleHandler struct {
	Commands commands.Bus
}

type assignRoleRequest struct {
	TargetEmail string `json:"targetEmail" binding:"required"`
	Role        string `json:"role"`
}

func (h RoleHandler) Assign(c *gin.Context) {
	user, ok := requireCaller(c)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "targetEmail is required")
		return
	}
	cmd := roles.AssignRoleCommand{CallerID: user.ID, TargetEmail: req.TargetEmail, Role: req.Role}
	result, err := commands.Dispatch[roles.AssignRoleCommand, *roles.AssignRoleResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ RoleHTTP = RoleHandler{}
