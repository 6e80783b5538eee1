package main

import (
	"fmt"
	"net/http"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/handler"
	"backoffice/internal/metrics"
	"backoffice/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *app) router() (*gin.Engine, error) {
	cfg := a.cfg
	gin.SetMode(cfg.GinMode)

	sqlDB, err := a.db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}

	auth := middleware.NewAuth([]byte(cfg.JWTSecret), cfg.IsRelease())

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/ws", a.hub.ServeWs(auth.ParseToken))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "status_code": http.StatusNotFound, "error": "route not found"})
	})

	root := router.Group("")
	handler.NewSystemHandler(sqlDB, handler.BuildInfo{
		Version:     cfg.Version,
		Environment: cfg.Environment,
		SentryDSN:   cfg.SentryDSN,
	}).RegisterRoutes(root)

	handler.NewUserHandler(a.users, auth).RegisterRoutes(root, auth)
	handler.NewApprovalHandler(a.approvals).RegisterRoutes(root, auth)
	handler.NewClockHandler(a.clock).RegisterRoutes(root, auth)
	handler.NewIntegrationHandler(a.integrations, a.accounting, a.calendar, handler.RedirectConfig{
		QuickBooksFrontendURL: cfg.QuickBooks.FrontendURL,
		GoogleFrontendURL:     cfg.Google.FrontendURL,
	}).RegisterRoutes(root, auth)
	handler.NewDatabaseConnectionHandler(a.connections).RegisterRoutes(root, auth)
	handler.NewSyncHandler(a.scheduler).RegisterRoutes(root, auth)
	handler.NewActivityHandler(a.activity).RegisterRoutes(root, auth)
	handler.NewPayrollHandler(a.payroll).RegisterRoutes(root, auth)
	handler.NewInvoiceHandler(a.invoices).RegisterRoutes(root, auth)

	return router, nil
}
