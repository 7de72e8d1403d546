package controller

import (
	"strconv"

	"companion-be/internal/pkg/serverutils"
	"companion-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAdminController interface {
	RegisterRoutes(r fiber.Router)
	GetLogs(ctx *fiber.Ctx) error
	GetLogDetail(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type adminController struct {
	service service.IAdminService
}

func NewAdminController(svc service.IAdminService) IAdminController {
	return &adminController{service: svc}
}

func (c *adminController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)

	h := r.Group("/admin", serverutils.JwtMiddleware, serverutils.OperatorOnly)
	h.Get("/logs", c.GetLogs)
	h.Get("/logs/:id", c.GetLogDetail)
}

func (c *adminController) GetLogs(ctx *fiber.Ctx) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	level := ctx.Query("level", "")

	logs, err := c.service.GetLogs(ctx.UserContext(), level, page, limit)
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("System logs", logs))
}

func (c *adminController) GetLogDetail(ctx *fiber.Ctx) error {
	// Log ids are MD5 hashes of the line.
	l, err := c.service.GetLogDetail(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Log detail", l))
}

func (c *adminController) Health(ctx *fiber.Ctx) error {
	res, err := c.service.Health(ctx.UserContext())
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Healthy", res))
}
