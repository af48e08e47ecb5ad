package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/identity"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	ctx := context.Background()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, "messaging-service", getEnv("OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	resolver := identity.NewResolver(getEnv("JWT_SECRET", "dev-secret"))

	convRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	publisher := rabbitmq.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AMQP_EXCHANGE", "platform.events"))
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	audit := telemetry.NewAuditEmitter(publisher, "audit.messaging", "messaging-service", getEnv("ENVIRONMENT", "development"))

	if amqpURL := getEnv("AMQP_URL", ""); amqpURL != "" {
		wsPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("AMQP_EXCHANGE", "platform.events"))
		if err != nil {
			log.Printf("ws event publisher disabled: %v", err)
		} else {
			observability.SetPublisher(wsPublisher)
			defer wsPublisher.Close()
		}
	}

	hub := ws.NewHub()

	conversationHandler := handlers.NewConversationHandler(convRepo, audit)
	messageHandler := handlers.NewMessageHandler(convRepo, messageRepo, hub, audit)
	wsHandler := ws.NewConversationWebSocketHandler(hub, convRepo, resolver)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messaging-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(resolver)

	router.POST("/conversations", authMiddleware, conversationHandler.CreateConversation)
	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations/:conversation_id/participants", authMiddleware, conversationHandler.AddParticipant)
	router.DELETE("/conversations/:conversation_id/participants/:user_id", authMiddleware, conversationHandler.RemoveParticipant)

	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.PostMessage)
	router.PATCH("/conversations/:conversation_id/messages/:message_id", authMiddleware, messageHandler.EditMessage)
	router.DELETE("/conversations/:conversation_id/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.POST("/conversations/:conversation_id/messages/:message_id/read", authMiddleware, messageHandler.MarkMessageRead)
	router.GET("/messages/search", authMiddleware, messageHandler.SearchMessages)

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, audit, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
