package controllers

import (
	"github.com/gin-gonic/gin"

	"grantvault/services"
	"grantvault/utils"
)

type AdminController struct {
	maintenanceService *services.MaintenanceService
}

func NewAdminController(maintenanceService *services.MaintenanceService) *AdminController {
	return &AdminController{maintenanceService: maintenanceService}
}

// ListOrphans scans the blob store for blobs no document references.
func (ctrl *AdminController) ListOrphans(c *gin.Context) {
	orphans, err := ctrl.maintenanceService.FindOrphans(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "orphans retrieved", gin.H{
		"count":   len(orphans),
		"orphans": orphans,
	})
}

// Reconcile finds and purges orphaned blobs in one pass. Runs to
// completion; per-item failures are reported, not fatal.
func (ctrl *AdminController) Reconcile(c *gin.Context) {
	result, err := ctrl.maintenanceService.Reconcile(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.SuccessResponse(c, "reconciliation complete", result)
}
