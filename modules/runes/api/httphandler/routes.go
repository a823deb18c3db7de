package httphandler

import (
	"github.com/gofiber/fiber/v2"
)

func (h *HttpHandler) Mount(router fiber.Router) error {
	r := router.Group("/v1/runes")

	r.Get("/block", h.GetCurrentBlock)
	r.Get("/blocks/:height", h.GetBlock)
	r.Get("/entries/:id", h.GetRuneEntry)
	r.Get("/outpoints/:txid/:vout", h.GetOutPoint)
	return nil
}
