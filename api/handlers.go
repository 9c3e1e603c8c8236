package api

import (
	"github.com/gofiber/fiber/v2"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleDBInfo returns the database identity and entity counts.
func (s *Server) handleDBInfo(c *fiber.Ctx) error {
	images, annots, names, err := s.ctrl.Counts(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to count entities"})
	}
	return c.JSON(fiber.Map{
		"db_uuid":     s.ctrl.DBUUID(),
		"images":      images,
		"annotations": annots,
		"names":       names,
	})
}
