package main

import (
	_ "backend/api/swagger" // swagger docs
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/notification"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/verification"
	"backend/internal/websocket"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Loan Application API
// @version         1.0
// @description     Backend for the personal loan site: calculator, application intake, document verification and the staff review console.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	cfg := config.Load()

	db, err := database.NewConnection(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	verifier := verification.NewGatewayVerifier(cfg.Verification)
	notifier := notification.NewDispatcher(cfg.Notification)

	calcService := service.NewCalculatorService(cfg.Loan)
	userService := service.NewUserService(userRepo, auditRepo)
	appService := service.NewApplicationService(appRepo, auditRepo, txManager, calcService, verifier, notifier, wsHub, cfg.Loan)
	adminService := service.NewAdminService(appRepo, auditRepo, txManager, wsHub)
	auditService := service.NewAuditService(auditRepo)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	calcHandler := handler.NewCalculatorHandler(calcService, cfg.Loan)
	appHandler := handler.NewApplicationHandler(appService)
	adminHandler := handler.NewAdminHandler(adminService)
	functionsHandler := handler.NewFunctionsHandler(appService, notifier)
	auditHandler := handler.NewAuditHandler(auditService)

	// Set up Gin Router
	router := gin.Default()

	// The function endpoints carry their own permissive CORS and must stay
	// callable from any origin, so they are registered before the allowlist
	// middleware below (gin only applies Use to routes registered after it).
	functionsHandler.RegisterRoutes(router.Group(""))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""))
	calcHandler.RegisterRoutes(router.Group("/api"))
	appHandler.RegisterRoutes(router.Group("/api"))
	adminHandler.RegisterRoutes(router.Group("/api"))
	auditHandler.RegisterRoutes(router.Group("/api"))

	log.Printf("Server listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
