package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"grantvault/services"
	"grantvault/utils"
)

type ShareController struct {
	shareService *services.ShareService
}

func NewShareController(shareService *services.ShareService) *ShareController {
	return &ShareController{shareService: shareService}
}

type shareRequest struct {
	GranteeID  string     `json:"grantee_id" binding:"required"`
	Permission string     `json:"permission" binding:"required,oneof=view download edit manage"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Share grants a user access to the document; re-sharing the same grantee
// replaces the existing grant.
func (ctrl *ShareController) Share(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "grantee_id and a valid permission are required")
		return
	}

	grant, err := ctrl.shareService.Share(c.Request.Context(), c.Param("id"), c.GetString("userId"),
		req.GranteeID, req.Permission, req.ExpiresAt)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.CreatedResponse(c, "document shared", grant)
}

func (ctrl *ShareController) Unshare(c *gin.Context) {
	err := ctrl.shareService.Unshare(c.Request.Context(), c.Param("id"), c.GetString("userId"), c.Param("granteeId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "share revoked", nil)
}

func (ctrl *ShareController) ListGrants(c *gin.Context) {
	grants, err := ctrl.shareService.ListGrants(c.Request.Context(), c.Param("id"), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "grants retrieved", grants)
}

// EvaluateAccess reports the caller's effective access level on the
// document.
func (ctrl *ShareController) EvaluateAccess(c *gin.Context) {
	decision, err := ctrl.shareService.EvaluateAccess(c.Request.Context(), c.Param("id"), c.GetString("userId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "access evaluated", decision)
}
