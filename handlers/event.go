package handlers

import (
	"errors"

	"artpriyo-settlement/middleware"
	"artpriyo-settlement/services"
	"artpriyo-settlement/utils"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

var handlerLog = utils.NewLogger("handlers")

// EventHandler exposes the engine over HTTP.
type EventHandler struct {
	Events     *services.EventService
	Enrollment *services.EnrollmentService
	Ranker     *services.Ranker
	Ledger     *services.Ledger
	Lifecycle  *services.LifecycleService
}

func SetupEventRoutes(app *fiber.App, h *EventHandler) {
	// 🔓 Readable by any gateway request
	app.Get("/events/upcoming", h.UpcomingEvents)
	app.Get("/events/:id", h.GetEvent)
	app.Get("/events/:id/leaderboard", h.GetLeaderboard)

	// 🔐 Authenticated user routes
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/events/:id/join", h.JoinEvent)
	secured.Post("/events/:id/leave", h.LeaveEvent)
	secured.Get("/wallet", h.GetWallet)
	secured.Get("/wallet/transactions", h.GetTransactions)

	// 🛠️ Admin routes
	admin := secured.Group("/admin", middleware.AdminOnly())
	admin.Post("/events", h.CreateEvent)
	admin.Post("/events/:id/settle", h.SettleEvent)
	admin.Post("/lifecycle/scan", h.RunLifecycleScan)
}

// respondError maps the service error kinds onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrConcurrencyConflict):
		status = fiber.StatusConflict
	}
	if status == fiber.StatusInternalServerError {
		handlerLog.Error().Err(err).Str("path", c.Path()).Msg("❌ request failed")
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// eventID copies the :id param so it can outlive the request.
func eventID(c *fiber.Ctx) string {
	return fiberutils.CopyString(c.Params("id"))
}

func (h *EventHandler) UpcomingEvents(c *fiber.Ctx) error {
	events, err := h.Events.UpcomingEvents(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(events)
}

func (h *EventHandler) GetEvent(c *fiber.Ctx) error {
	ev, err := h.Events.GetEvent(c.UserContext(), eventID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ev)
}

func (h *EventHandler) GetLeaderboard(c *fiber.Ctx) error {
	entries, err := h.Ranker.GetLeaderboard(c.UserContext(), eventID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"event_id":    eventID(c),
		"leaderboard": entries,
	})
}

func (h *EventHandler) JoinEvent(c *fiber.Ctx) error {
	var req struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	res, err := h.Enrollment.JoinEvent(c.UserContext(), middleware.UserID(c), eventID(c), req.PaymentRef)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "joined event successfully",
		"event":       res.Event,
		"transaction": res.Transaction,
	})
}

func (h *EventHandler) LeaveEvent(c *fiber.Ctx) error {
	res, err := h.Enrollment.LeaveEvent(c.UserContext(), middleware.UserID(c), eventID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "left event",
		"event":       res.Event,
		"transaction": res.Transaction,
	})
}

func (h *EventHandler) GetWallet(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	bal, err := h.Ledger.Balance(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user_id": userID, "balance": bal})
}

func (h *EventHandler) GetTransactions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 100"})
	}
	hist, err := h.Ledger.Transactions(c.UserContext(), middleware.UserID(c), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(hist)
}

func (h *EventHandler) CreateEvent(c *fiber.Ctx) error {
	var in services.CreateEventInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	ev, err := h.Events.CreateEvent(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "event created successfully",
		"event":   ev,
	})
}

func (h *EventHandler) SettleEvent(c *fiber.Ctx) error {
	res, err := h.Lifecycle.SettleEvent(c.UserContext(), eventID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// RunLifecycleScan triggers an out-of-band scan, for operational recovery.
func (h *EventHandler) RunLifecycleScan(c *fiber.Ctx) error {
	report, err := h.Lifecycle.RunLifecycleScan(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}
