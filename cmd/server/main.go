package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classhub/backend/internal/config"
	"github.com/classhub/backend/internal/database"
	"github.com/classhub/backend/internal/handlers"
	"github.com/classhub/backend/internal/middleware"
	"github.com/classhub/backend/internal/services"
	"github.com/classhub/backend/internal/storage"
	"github.com/classhub/backend/pkg/logger"
	"github.com/classhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	roleService := services.NewRoleService(db)
	notifier := services.NewNotifier(db, cfg.Notify.QueueBufferSize)
	assistantService := services.NewAssistantService(cfg.Assistant)

	authHandler := handlers.NewAuthHandler(db)
	usersHandler := handlers.NewUsersHandler(db)
	groupsHandler := handlers.NewGroupsHandler(db, roleService, notifier)
	joinRequestsHandler := handlers.NewJoinRequestsHandler(db, roleService, notifier)
	tasksHandler := handlers.NewTasksHandler(db, roleService, notifier)
	submissionsHandler := handlers.NewSubmissionsHandler(db, roleService, notifier)
	notificationsHandler := handlers.NewNotificationsHandler(db)
	uploadsHandler := handlers.NewUploadsHandler(db, storageClient, roleService)
	assistantHandler := handlers.NewAssistantHandler(assistantService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 50 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	api.Get("/users/search", authMiddleware.RequireAuth, usersHandler.Search)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Get("/:id/members", groupsHandler.ListMembers)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:userId", groupsHandler.RemoveMember)
	groupRoutes.Put("/:id/members/:userId", groupsHandler.UpdateMemberRole)
	groupRoutes.Post("/:id/join-requests", joinRequestsHandler.Create)
	groupRoutes.Get("/:id/join-requests", joinRequestsHandler.ListPending)
	groupRoutes.Post("/:id/tasks", tasksHandler.Create)
	groupRoutes.Get("/:id/tasks", tasksHandler.ListForGroup)

	api.Put("/join-requests/:id", authMiddleware.RequireAuth, joinRequestsHandler.Resolve)

	taskRoutes := api.Group("/tasks", authMiddleware.RequireAuth)
	taskRoutes.Get("/:id", tasksHandler.Get)
	taskRoutes.Put("/:id", tasksHandler.Update)
	taskRoutes.Delete("/:id", tasksHandler.Delete)
	taskRoutes.Post("/:id/submissions", submissionsHandler.Submit)
	taskRoutes.Get("/:id/submissions", submissionsHandler.ListForTask)
	taskRoutes.Post("/:id/attachments", uploadsHandler.UploadTaskAttachment)

	submissionRoutes := api.Group("/submissions", authMiddleware.RequireAuth)
	submissionRoutes.Delete("/:id", submissionsHandler.Delete)
	submissionRoutes.Put("/:id/score", submissionsHandler.Grade)
	submissionRoutes.Post("/:id/attachments", uploadsHandler.UploadSubmissionAttachment)

	api.Get("/attachments/:id/url", authMiddleware.RequireAuth, uploadsHandler.DownloadURL)
	api.Post("/uploads/avatar", authMiddleware.RequireAuth, uploadsHandler.UploadAvatar)

	notificationRoutes := api.Group("/notifications", authMiddleware.RequireAuth)
	notificationRoutes.Get("/", notificationsHandler.List)
	notificationRoutes.Get("/unread-count", notificationsHandler.UnreadCount)
	notificationRoutes.Put("/:id/read", notificationsHandler.MarkRead)
	notificationRoutes.Put("/read-all", notificationsHandler.MarkAllRead)

	api.Post("/assistant/ask", authMiddleware.RequireAuth, assistantHandler.Ask)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			notifier.Wait()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
