package configuration

import (
	"Deskwire/internal/db"
	"Deskwire/internal/handler"
	"Deskwire/internal/hub"
	"Deskwire/internal/repo"
	"Deskwire/internal/service"
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	TicketHandler handler.TicketHandler
	Hub           *hub.Hub
	Config        Config
	Logger        *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig("../../shared/config.dev.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Config loaded: %+v\n", config)

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	logger, _ := zap.NewProduction()

	messageLog := repo.NewMessageLog(con, config.ChatDatabase.MessagesCollection, config.ChatDatabase.CountersCollection, logger)
	ticketRepo := repo.NewTicketRepository(con, config.ChatDatabase.TicketsCollection, logger)

	// Create Hub with the message log and ticket status source
	Hub := hub.NewHub(messageLog, ticketRepo, hub.Options{
		HeartbeatInterval:  time.Duration(config.Heartbeat.IntervalSeconds) * time.Second,
		HeartbeatMissLimit: config.Heartbeat.MissLimit,
	})

	ticketService := service.NewTicketService(ticketRepo, messageLog, Hub, logger)
	ticketHandler := handler.NewTicketHandler(ticketService)

	return &Container{
		TicketHandler: ticketHandler,
		Hub:           Hub,
		Config:        *config,
		Logger:        logger,
		mongoClient:   con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
