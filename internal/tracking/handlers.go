package tracking

import (
	"errors"

	"backend-routetrack/internal/route"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/routes/:routeID/start", authMiddleware, func(c *fiber.Ctx) error {
		session, err := svc.StartSession(c.Context(), c.Params("routeID"))
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/routes/:routeID/pings", authMiddleware, func(c *fiber.Ctx) error {
		var req PingInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		ping, err := svc.AddPing(c.Context(), c.Params("routeID"), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(ping)
	})

	r.Post("/routes/:routeID/stop", authMiddleware, func(c *fiber.Ctx) error {
		session, err := svc.StopSession(c.Context(), c.Params("routeID"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(session)
	})

	r.Get("/routes/:routeID/pings", func(c *fiber.Ctx) error {
		pings, err := svc.Pings(c.Context(), c.Params("routeID"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(pings)
	})

	r.Get("/routes/:routeID/analytics", func(c *fiber.Ctx) error {
		analytics, err := svc.Analytics(c.Context(), c.Params("routeID"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(analytics)
	})

	r.Get("/routes/:routeID/status", func(c *fiber.Ctx) error {
		status, err := svc.Status(c.Context(), c.Params("routeID"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(status)
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, route.ErrRouteNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidPing):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoActiveSession), errors.Is(err, ErrOutOfOrder), errors.Is(err, ErrDuplicatePing):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
