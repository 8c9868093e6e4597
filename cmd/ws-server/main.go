package main

import (
	"log"

	"lead-routing-backend/internal/api"
	"lead-routing-backend/internal/api/router"
	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/env"
	"lead-routing-backend/internal/events"
	"lead-routing-backend/internal/provider/whatsapp"
	"lead-routing-backend/internal/queue"
	agentsvc "lead-routing-backend/internal/service/agent"
	"lead-routing-backend/internal/service/ingest"
	leadsvc "lead-routing-backend/internal/service/lead"
	messagesvc "lead-routing-backend/internal/service/message"
	"lead-routing-backend/internal/service/routing"
	"lead-routing-backend/internal/websocket"

	"github.com/go-redis/redis/v8"
)

func main() {
	env.MustBoot()

	queueManager := queue.NewRequestQueueManager(50, 10)
	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     env.Get(env.ChatRedisURL),
		Password: env.Get(env.ChatRedisPass),
		DB:       0,
	})

	hub := websocket.NewHub()
	go hub.Run()
	handler := websocket.NewHandler(hub, redisClient)

	// Events reach local clients through the room's Redis subscription,
	// the same path every other instance uses. Attaching the hub here
	// as a second path would deliver each event twice.
	broadcaster := events.NewBroadcaster(redisClient)
	if amqpURL := env.Get(env.AMQPURL); amqpURL != "" {
		mirror, err := events.NewAMQPPublisher(amqpURL, "lead-router.events")
		if err != nil {
			log.Fatalf("amqp init failed: %v", err)
		}
		broadcaster.WithMirror(mirror)
	}

	gateway := whatsapp.NewClient(env.Get(env.ProviderAPIURL), env.Get(env.ProviderAPIToken))

	leads := leadsvc.New(db, env.GetOrDefault(env.DefaultPipeline, "sales"))
	routingService := routing.New(db, broadcaster, env.GetOrDefault(env.PostSalesPipeline, "post-sales"))
	messages := messagesvc.New(db, gateway, broadcaster)

	commands := websocket.NewCommands(routingService, messages, leads, handler)
	handler.SetEventHandler(commands.Handle)
	handler.SetPresenceListener(websocket.NewAgentPresence(routingService))

	// The broadcast room exists from boot so cross-process events are
	// mirrored locally before any client connects. CreateRoom also
	// starts the room's Redis subscription.
	handler.CreateRoom(events.BroadcastRoom)

	services := api.Services{
		Leads:    leads,
		Routing:  routingService,
		Messages: messages,
		Agents:   agentsvc.New(db),
		Ingest:   ingest.New(leads, routingService, messages, broadcaster),
	}

	server := api.NewAPIServer(
		":83",
		queueManager,
		db,
		handler,
		services,
		router.UtilsRoutes("/api/ws/v1"),
		router.WebsocketRoutes("/api/ws/v1"),
	)

	server.Run()
}
