package routes

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"grantvault/config"
	"grantvault/controllers"
	"grantvault/middleware"
	"grantvault/services"
)

// ServiceContainer wires the engine's components together. The blob store
// is constructed here but opened by the caller; operations block until it
// signals readiness.
type ServiceContainer struct {
	BlobStore          *services.BlobStore
	QuotaService       *services.QuotaService
	DocumentService    *services.DocumentService
	VersionService     *services.VersionService
	ShareService       *services.ShareService
	MaintenanceService *services.MaintenanceService
}

func NewServiceContainer(db *mongo.Database, cfg *config.Config, logger *zap.Logger) *ServiceContainer {
	blobStore := services.NewBlobStore(db, cfg.BlobReadyTimeout, logger)
	quotaService := services.NewQuotaService(db, services.QuotaLimits{
		MaxFileSize:       cfg.MaxFileSize,
		BaseStorage:       cfg.BaseStorageLimit,
		ElevatedStorage:   cfg.ElevatedStorageLimit,
		BaseDocuments:     cfg.BaseDocumentLimit,
		ElevatedDocuments: cfg.ElevatedDocumentLimit,
	})

	return &ServiceContainer{
		BlobStore:          blobStore,
		QuotaService:       quotaService,
		DocumentService:    services.NewDocumentService(db, blobStore, quotaService, logger),
		VersionService:     services.NewVersionService(db, blobStore, quotaService, logger),
		ShareService:       services.NewShareService(db),
		MaintenanceService: services.NewMaintenanceService(db, blobStore, logger),
	}
}

// Setup registers all API routes on the group.
func Setup(api *gin.RouterGroup, container *ServiceContainer, cfg *config.Config) {
	documentController := controllers.NewDocumentController(
		container.DocumentService, container.VersionService, container.QuotaService, cfg.MaxFileSize)
	shareController := controllers.NewShareController(container.ShareService)
	adminController := controllers.NewAdminController(container.MaintenanceService)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))

	documents := authed.Group("/documents")
	{
		documents.POST("", documentController.Upload)
		documents.GET("", documentController.List)
		documents.GET("/shared", documentController.ListShared)
		documents.GET("/trash", documentController.ListTrash)
		documents.GET("/:id", documentController.Get)
		documents.PATCH("/:id", documentController.Update)
		documents.DELETE("/:id", documentController.SoftDelete)
		documents.POST("/:id/restore", documentController.Restore)
		documents.DELETE("/:id/permanent", documentController.PermanentDelete)
		documents.GET("/:id/download", documentController.Download)
		documents.POST("/:id/versions", documentController.CreateVersion)
		documents.GET("/:id/versions", documentController.ListChain)
		documents.POST("/:id/shares", shareController.Share)
		documents.GET("/:id/shares", shareController.ListGrants)
		documents.DELETE("/:id/shares/:granteeId", shareController.Unshare)
		documents.GET("/:id/access", shareController.EvaluateAccess)
	}

	authed.GET("/usage", documentController.Usage)

	admin := authed.Group("/admin", middleware.RequireAdmin())
	{
		admin.GET("/maintenance/orphans", adminController.ListOrphans)
		admin.POST("/maintenance/reconcile", adminController.Reconcile)
	}
}
