package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/taskboard/backend/internal/middleware"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
)

type MembershipHandler struct {
	membershipService *services.MembershipService
}

func NewMembershipHandler(db *gorm.DB) *MembershipHandler {
	return &MembershipHandler{
		membershipService: services.NewMembershipService(db),
	}
}

// List returns the project's members
// GET /api/projects/:id/members
func (h *MembershipHandler) List(c *gin.Context) {
	members, err := h.membershipService.List(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, members)
}

// Invite adds a registered user to the project
// POST /api/projects/:id/members
func (h *MembershipHandler) Invite(c *gin.Context) {
	var req services.InviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	membership, err := h.membershipService.Invite(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, membership)
}

// Remove deletes a membership
// DELETE /api/projects/:id/members/:membershipId
func (h *MembershipHandler) Remove(c *gin.Context) {
	err := h.membershipService.Remove(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("membershipId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
