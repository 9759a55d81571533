package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"

	"github.com/learnloop/chat-service/internal/auth"
	"github.com/learnloop/chat-service/internal/ws"
)

// NewServer assembles the fiber app: health probe, websocket upgrade and
// the authenticated REST surface under /api/chat.
func NewServer(h *Handlers, gw *ws.Gateway, verifier *auth.Verifier, rdb *redis.Client, ratePerMin int) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: maxUploadSize + 1<<20,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Token auth happens inside the gateway; the upgrade itself is open.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(gw.Handle))

	api := app.Group("/api/chat")
	api.Use(JWTAuth(verifier))
	api.Use(NewRateLimiter(rdb, "chat:rate", ratePerMin, time.Minute).Middleware())

	api.Post("/rooms/direct/request", h.sendRequest)
	api.Post("/rooms/direct/respond", h.respondRequest)
	api.Post("/rooms/direct/message", h.sendMessage)
	api.Post("/rooms/group", h.createGroup)
	api.Post("/rooms/group/:roomId/message", h.sendGroupMessage)
	api.Post("/rooms/group/:roomId/invite", h.inviteMembers)
	api.Get("/rooms", h.listRooms)
	api.Get("/rooms/:roomId/messages", h.listMessages)
	api.Post("/rooms/:roomId/mark-read", h.markRead)
	api.Post("/rooms/:roomId/leave", h.leaveRoom)
	api.Delete("/rooms/:roomId", h.deleteRoom)

	return app
}
