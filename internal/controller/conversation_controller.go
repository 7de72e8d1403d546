package controller

import (
	"companion-be/internal/dto"
	"companion-be/internal/pkg/serverutils"
	"companion-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IConversationController interface {
	RegisterRoutes(r fiber.Router)
	Stats(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	Cleanup(ctx *fiber.Ctx) error
	ForceSave(ctx *fiber.Ctx) error
}

type conversationController struct {
	service service.IConversationService
}

func NewConversationController(svc service.IConversationService) IConversationController {
	return &conversationController{service: svc}
}

func (c *conversationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/conversations", serverutils.JwtMiddleware, serverutils.OperatorOnly)
	h.Get("/stats", c.Stats)
	h.Get("/:userId/history", c.History)
	h.Post("/cleanup", c.Cleanup)
	h.Post("/save", c.ForceSave)
}

func (c *conversationController) Stats(ctx *fiber.Ctx) error {
	res, err := c.service.Stats(ctx.UserContext())
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversation stats", res))
}

func (c *conversationController) History(ctx *fiber.Ctx) error {
	res, err := c.service.History(ctx.UserContext(), ctx.Params("userId"))
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversation history", res))
}

func (c *conversationController) Cleanup(ctx *fiber.Ctx) error {
	var req dto.CleanupConversationsRequest
	// An empty body means the configured retention.
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return serverutils.BadRequest("Invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Cleanup(ctx.UserContext(), req)
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Old conversations removed", res))
}

func (c *conversationController) ForceSave(ctx *fiber.Ctx) error {
	res, err := c.service.ForceSave(ctx.UserContext())
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Stores saved", res))
}
