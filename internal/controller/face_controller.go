package controller

import (
	"companion-be/internal/dto"
	"companion-be/internal/pkg/serverutils"
	"companion-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IFaceController interface {
	RegisterRoutes(r fiber.Router)
	Recognize(ctx *fiber.Ctx) error
	ResetDetection(ctx *fiber.Ctx) error
	ListUsers(ctx *fiber.Ctx) error
	GetUser(ctx *fiber.Ctx) error
	RenameUser(ctx *fiber.Ctx) error
}

type faceController struct {
	recognition service.IRecognitionService
	faces       service.IFaceService
}

func NewFaceController(recognition service.IRecognitionService, faces service.IFaceService) IFaceController {
	return &faceController{recognition: recognition, faces: faces}
}

func (c *faceController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/face")

	h.Post("/recognize", c.Recognize)
	h.Post("/reset", c.ResetDetection)

	h.Get("/users", c.ListUsers)
	h.Get("/users/:id", c.GetUser)
	h.Put("/users/:id/name", c.RenameUser)
}

func (c *faceController) Recognize(ctx *fiber.Ctx) error {
	var req dto.RecognizeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest("Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.recognition.Recognize(ctx.UserContext(), req)
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse(res.Message, res))
}

func (c *faceController) ResetDetection(ctx *fiber.Ctx) error {
	var req dto.ResetDetectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest("Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.recognition.ResetDetection(ctx.UserContext(), req)
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Detection reset", res))
}

func (c *faceController) ListUsers(ctx *fiber.Ctx) error {
	if name := ctx.Query("name"); name != "" {
		user, err := c.faces.FindByName(ctx.UserContext(), name)
		if err != nil {
			return service.ToAppError(err)
		}
		return ctx.JSON(serverutils.SuccessResponse("Face users", []dto.FaceUserResponse{*user}))
	}

	res, err := c.faces.List(ctx.UserContext())
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Face users", res))
}

func (c *faceController) GetUser(ctx *fiber.Ctx) error {
	res, err := c.faces.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Face user", res))
}

func (c *faceController) RenameUser(ctx *fiber.Ctx) error {
	var req dto.RenameFaceUserRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest("Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.faces.Rename(ctx.UserContext(), ctx.Params("id"), req)
	if err != nil {
		return service.ToAppError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Name updated", res))
}
