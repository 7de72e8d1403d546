package service

import (
	"errors"

	"companion-be/internal/pkg/logger"
	"companion-be/internal/pkg/serverutils"
	"companion-be/pkg/consensus"
	"companion-be/pkg/facestore"

	"github.com/gofiber/fiber/v2"
)

var ErrInvalidImage = errors.New("image is not valid base64")

// ToAppError maps domain errors onto HTTP statuses. Unknown errors become 500.
func ToAppError(err error) error {
	var appErr *serverutils.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ErrInvalidImage), errors.Is(err, facestore.ErrInvalidName):
		return serverutils.NewAppError(fiber.StatusBadRequest, err.Error(), err)
	case errors.Is(err, consensus.ErrModelUnavailable):
		return serverutils.NewAppError(fiber.StatusServiceUnavailable, "Face model is not available", err)
	case errors.Is(err, consensus.ErrBatchInFlight):
		return serverutils.NewAppError(fiber.StatusConflict, err.Error(), err)
	case errors.Is(err, facestore.ErrUserNotFound), errors.Is(err, logger.ErrLogNotFound):
		return serverutils.NewAppError(fiber.StatusNotFound, err.Error(), err)
	}
	return serverutils.NewAppError(fiber.StatusInternalServerError, "Internal server error", err)
}
