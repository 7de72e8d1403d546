package service

import (
	"context"
	"errors"

	"companion-be/internal/dto"
	"companion-be/internal/mapper"
	"companion-be/internal/pkg/logger"
	"companion-be/pkg/facestore"
)

type IFaceService interface {
	List(ctx context.Context) ([]dto.FaceUserResponse, error)
	Get(ctx context.Context, id string) (*dto.FaceUserResponse, error)
	FindByName(ctx context.Context, name string) (*dto.FaceUserResponse, error)
	Rename(ctx context.Context, id string, req dto.RenameFaceUserRequest) (*dto.FaceUserResponse, error)
}

type FaceRegistry interface {
	List() []facestore.UserRecord
	Get(id string) (facestore.UserRecord, bool)
	FindByName(name string) (facestore.UserRecord, bool)
	Rename(id, name string) (facestore.UserRecord, error)
}

type faceService struct {
	faces  FaceRegistry
	mapper *mapper.FaceUserMapper
	logger logger.ILogger
}

func NewFaceService(faces FaceRegistry, log logger.ILogger) IFaceService {
	return &faceService{faces: faces, mapper: mapper.NewFaceUserMapper(), logger: log}
}

func (s *faceService) List(ctx context.Context) ([]dto.FaceUserResponse, error) {
	return s.mapper.ToResponses(s.faces.List()), nil
}

func (s *faceService) Get(ctx context.Context, id string) (*dto.FaceUserResponse, error) {
	u, ok := s.faces.Get(id)
	if !ok {
		return nil, facestore.ErrUserNotFound
	}
	res := s.mapper.ToResponse(u)
	return &res, nil
}

// FindByName returns the most recently seen user with that name.
func (s *faceService) FindByName(ctx context.Context, name string) (*dto.FaceUserResponse, error) {
	u, ok := s.faces.FindByName(name)
	if !ok {
		return nil, facestore.ErrUserNotFound
	}
	res := s.mapper.ToResponse(u)
	return &res, nil
}

func (s *faceService) Rename(ctx context.Context, id string, req dto.RenameFaceUserRequest) (*dto.FaceUserResponse, error) {
	u, err := s.faces.Rename(id, req.Name)
	if err != nil {
		if !errors.Is(err, facestore.ErrPersist) {
			return nil, err
		}
		s.logger.Error("FaceService", "Rename applied but not persisted", map[string]interface{}{
			"user_id": id,
			"error":   err.Error(),
		})
	}

	s.logger.Info("FaceService", "User renamed", map[string]interface{}{"user_id": u.ID, "name": u.Name})
	res := s.mapper.ToResponse(u)
	return &res, nil
}
