package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pelusa-v/pelusa-relay/internal/chat"
)

type Options struct {
	Hub          *chat.Hub
	Logger       *slog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Gatherer backs /metrics; the route is skipped when nil.
	Gatherer  prometheus.Gatherer
	StaticDir string
}

type Handlers struct {
	hub          *chat.Hub
	logger       *slog.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
	gatherer     prometheus.Gatherer
	staticDir    string
}

func New(o Options) *Handlers {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		hub:          o.Hub,
		logger:       logger.With("component", "http"),
		readTimeout:  o.ReadTimeout,
		writeTimeout: o.WriteTimeout,
		gatherer:     o.Gatherer,
		staticDir:    o.StaticDir,
	}
}

func (h *Handlers) Register(app *fiber.App) {
	app.Get("/ws/:user_id", h.Upgrade, websocket.New(h.Stream))
	app.Get("/api/clients", h.ShowClients) // ?exclude=userID
	app.Get("/api/backlog/:user_id", h.ShowBacklog)
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	if h.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	if h.staticDir != "" {
		app.Static("/static", h.staticDir)
	}
}

func parseUserID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Upgrade GET /ws/:user_id, checks the id before the handshake.
func (h *Handlers) Upgrade(c *fiber.Ctx) error {
	userID, ok := parseUserID(c.Params("user_id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id must be a positive integer"})
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("user_id", userID)
	return c.Next()
}

// Stream runs one websocket session: register, read until the socket dies, disconnect.
func (h *Handlers) Stream(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(int64)
	ctx := context.Background()
	client := chat.NewClient(userID, conn, h.writeTimeout)

	if !h.hub.Connect(ctx, userID, client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "connection refused"))
		_ = client.Close()
		return
	}
	client.ReadPump(ctx, h.hub, h.readTimeout)
}

// ShowClients GET /api/clients?exclude=userID
func (h *Handlers) ShowClients(c *fiber.Ctx) error {
	var exclude int64
	if raw := c.Query("exclude"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "exclude must be an integer"})
		}
		exclude = id
	}
	ids := h.hub.ListClients(exclude)
	if ids == nil {
		ids = []int64{}
	}
	return c.JSON(ids)
}

// ShowBacklog GET /api/backlog/:user_id
func (h *Handlers) ShowBacklog(c *fiber.Ctx) error {
	userID, ok := parseUserID(c.Params("user_id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id must be a positive integer"})
	}
	list, err := h.hub.Backlog(c.UserContext(), userID)
	if err != nil {
		h.logger.Error("failed to load backlog", "user_id", userID, "error", err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "backlog unavailable"})
	}
	return c.JSON(list)
}
