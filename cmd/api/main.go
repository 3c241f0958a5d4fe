package main

import (
	"log"

	_ "foodshare-backend/api/swagger" // swagger docs
	"foodshare-backend/config"
	"foodshare-backend/internal/assistant"
	"foodshare-backend/internal/barcode"
	"foodshare-backend/internal/database"
	"foodshare-backend/internal/handler"
	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/notifier"
	"foodshare-backend/internal/repository"
	"foodshare-backend/internal/service"
	"foodshare-backend/internal/websocket"
	"foodshare-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Donation Management API
// @version         1.0
// @description     Backend for donation intake, stock reservation and pickup-request management.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Configuration load failed: %v", err)
	}

	zapLogger, err := logger.New(cfg.Server.Development)
	if err != nil {
		log.Fatalf("Logger init failed: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewConnection(cfg.Database.DSN)
	if err != nil {
		zapLogger.Fatal("database connection failed", zap.Error(err))
	}
	zapLogger.Info("connected to PostgreSQL")

	middleware.InitAuth(cfg.JWT.Secret)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// External clients
	pushClient := notifier.NewClient(cfg.Push, zapLogger)
	chatClient := assistant.NewClient(cfg.Chat)
	barcodeClient := barcode.NewClient(cfg.Barcode)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	stockRepo := repository.NewStockRepository(db)
	requestRepo := repository.NewRequestRepository(db, zapLogger)
	auditRepo := repository.NewAuditRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)

	auditService := service.NewAuditService(auditRepo, userRepo, campaignRepo, productRepo, zapLogger)
	catalogService := service.NewCatalogService(stockRepo, productRepo, campaignRepo, txManager, auditService, zapLogger)
	requestService := service.NewRequestService(requestRepo, stockRepo, userRepo, txManager, auditService, pushClient, wsHub, zapLogger)
	userService := service.NewUserService(userRepo, cfg.JWT)
	statsService := service.NewStatsService(db)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	requestHandler := handler.NewRequestHandler(requestService)
	auditHandler := handler.NewAuditHandler(auditService)
	notificationHandler := handler.NewNotificationHandler(pushClient, zapLogger)
	chatHandler := handler.NewChatHandler(chatClient)
	barcodeHandler := handler.NewBarcodeHandler(barcodeClient)
	statsHandler := handler.NewStatsHandler(statsService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
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

	// WebSocket endpoint for staff dashboards
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, []byte(cfg.JWT.Secret))
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""))
	catalogHandler.RegisterRoutes(router.Group(""))
	requestHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	notificationHandler.RegisterRoutes(router.Group(""))
	chatHandler.RegisterRoutes(router.Group(""))
	barcodeHandler.RegisterRoutes(router.Group(""))
	statsHandler.RegisterRoutes(router.Group(""))

	zapLogger.Info("server listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
}
