package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/config"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/handlers"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/middleware"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/repository"
	"github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/services"
	chatws "github.com/lucascarlosmeuads/Trafego-Porcents-sub001/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var storageService services.StorageService
	if cfg.SupabaseURL != "" && cfg.SupabaseBucket != "" && cfg.SupabaseServiceKey != "" {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	hub := chatws.NewHub()
	go hub.Run()

	planner := services.NewViewPlanner(customerRepo)
	chatService := services.NewChatService(db, messageRepo, customerRepo, planner, hub)

	authHandler := handlers.NewAuthHandler(db, userRepo, customerRepo, cfg.JWTSecret)
	adminHandler := handlers.NewAdminHandler(userRepo, customerRepo)
	chatHandler := handlers.NewChatHandler(chatService, planner, hub, storageService, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Get("/messages", chatHandler.GetMessages)
	conversations.Post("/messages", chatHandler.SendMessage)
	conversations.Post("/messages/audio", chatHandler.SendAudioMessage)
	conversations.Post("/read", chatHandler.MarkRead)

	admin := authProtected.Group("/admin")
	admin.Get("/managers", adminHandler.ListManagers)
	admin.Get("/customers", adminHandler.ListCustomers)
	admin.Put("/customers/:email/manager", adminHandler.AssignManager)
	admin.Put("/customers/:email/status", adminHandler.SetCampaignStatus)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}
