package pkg

import (
	"CampusNotify/internal/auth"
	"CampusNotify/internal/config"
	"CampusNotify/internal/notification"
	"CampusNotify/internal/realtime"
	appmiddleware "CampusNotify/pkg/middleware"
	"context"
	"log"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
)

var AppModules = fx.Module("campusnotify",
	fx.Provide(config.NewLogger),
	fx.Provide(NewEchoServer),
	fx.Provide(config.NewMongoDBConfig),
	fx.Provide(config.NewMongoDBClient),
	fx.Provide(config.NewResendConfig),
	fx.Provide(config.NewEmailService),
	fx.Provide(auth.NewUserRepository),
	fx.Provide(auth.NewAuthService),
	fx.Provide(auth.NewUserService),
	fx.Provide(auth.NewAuthHandler),
	fx.Provide(realtime.NewHub),
	fx.Provide(realtime.NewWSHandler),
	fx.Provide(notification.NewNotificationRepository),
	fx.Provide(func(repo *notification.NotificationRepository) notification.Store { return repo }),
	fx.Provide(func(repo *auth.UserRepository) notification.Directory { return repo }),
	fx.Provide(func(hub *realtime.Hub) notification.Registry { return notification.HubRegistry{Hub: hub} }),
	fx.Provide(func(es *config.EmailService) notification.Mailer { return es }),
	fx.Provide(notification.NewEngine),
	fx.Provide(notification.NewNotificationService),
	fx.Provide(notification.NewNotificationHandler),
	fx.Provide(notification.NewNotificationScheduler),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(func(s *notification.NotificationScheduler, lc fx.Lifecycle) {
		s.StartScheduler(lc)
	}),
)

func NewEchoServer(lc fx.Lifecycle) *echo.Echo {
	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:5173"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port
	log.Println("Server running on http://localhost" + addr)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(addr); err != nil {
					log.Println("Server stopped:", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("shutting down the server ...")
			return e.Shutdown(ctx)
		},
	})
	return e
}

func RegisterRoutes(
	e *echo.Echo,
	authHandler *auth.AuthHandler,
	notificationHandler *notification.NotificationHandler,
	wsHandler *realtime.WSHandler,
) {
	e.POST("/register", authHandler.Register)
	e.POST("/login", authHandler.Login)
	e.POST("/forgot-password", authHandler.ForgotPassword)
	e.POST("/verify-email", authHandler.VerifyEmail)
	e.POST("/reset-password", authHandler.ResetPassword)

	// Token rides the query string: browsers cannot set headers on ws dials.
	e.GET("/ws", wsHandler.Serve)

	protected := e.Group("/api")
	protected.Use(appmiddleware.JWTMiddleware)
	protected.Use(appmiddleware.CasbinMiddleware)
	protected.GET("/profile", authHandler.Profile)
	protected.POST("/notifications", notificationHandler.Create)
	protected.GET("/notifications", notificationHandler.Feed)
	protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
	protected.POST("/notifications/:id/resend", notificationHandler.Resend)
	protected.GET("/admin/notifications", notificationHandler.AdminList)
}
