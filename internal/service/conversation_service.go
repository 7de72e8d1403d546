package service

import (
	"context"
	"fmt"
	"time"

	"companion-be/internal/dto"
	"companion-be/internal/mapper"
	"companion-be/internal/pkg/logger"
	"companion-be/pkg/conversation"
)

type IConversationService interface {
	Stats(ctx context.Context) (*dto.ConversationStatsResponse, error)
	History(ctx context.Context, userID string) (*dto.ConversationHistoryResponse, error)
	Cleanup(ctx context.Context, req dto.CleanupConversationsRequest) (*dto.CleanupConversationsResponse, error)
	ForceSave(ctx context.Context) (*dto.ForceSaveResponse, error)
}

type ConversationArchive interface {
	Stats() conversation.Stats
	History(userID string) []conversation.Session
	Cleanup(daysOld int) conversation.CleanupResult
	Save() error
	Path() string
}

// Snapshotter is any document store that can be flushed to disk.
type Snapshotter interface {
	Save() error
	Path() string
}

// Uploader copies a snapshot file off the host.
type Uploader interface {
	UploadFile(ctx context.Context, filePath string) (string, error)
}

type conversationService struct {
	conversations  ConversationArchive
	faces          Snapshotter
	uploader       Uploader
	defaultDaysOld int
	mapper         *mapper.ConversationMapper
	logger         logger.ILogger
	now            func() time.Time
}

// NewConversationService builds the archive service. uploader may be nil.
func NewConversationService(conversations ConversationArchive, faces Snapshotter, uploader Uploader, defaultDaysOld int, log logger.ILogger) IConversationService {
	return &conversationService{
		conversations:  conversations,
		faces:          faces,
		uploader:       uploader,
		defaultDaysOld: defaultDaysOld,
		mapper:         mapper.NewConversationMapper(),
		logger:         log,
		now:            time.Now,
	}
}

func (s *conversationService) Stats(ctx context.Context) (*dto.ConversationStatsResponse, error) {
	res := s.mapper.ToStats(s.conversations.Stats())
	return &res, nil
}

func (s *conversationService) History(ctx context.Context, userID string) (*dto.ConversationHistoryResponse, error) {
	res := s.mapper.ToHistory(userID, s.conversations.History(userID))
	return &res, nil
}

func (s *conversationService) Cleanup(ctx context.Context, req dto.CleanupConversationsRequest) (*dto.CleanupConversationsResponse, error) {
	days := s.defaultDaysOld
	if req.DaysOld != nil {
		days = *req.DaysOld
	}

	result := s.conversations.Cleanup(days)
	s.logger.Info("ConversationService", "Old conversations removed", map[string]interface{}{
		"days_old":         days,
		"removed_sessions": result.RemovedSessions,
		"removed_users":    result.RemovedUsers,
	})

	if result.RemovedSessions > 0 {
		if err := s.conversations.Save(); err != nil {
			s.logger.Error("ConversationService", "Failed to save after cleanup", map[string]interface{}{"error": err.Error()})
		}
	}

	return &dto.CleanupConversationsResponse{
		DaysOld:         days,
		RemovedSessions: result.RemovedSessions,
		RemovedUsers:    result.RemovedUsers,
	}, nil
}

// ForceSave flushes both documents, then uploads them when a backup target is set.
// Upload failures are logged; the local save is what the caller asked for.
func (s *conversationService) ForceSave(ctx context.Context) (*dto.ForceSaveResponse, error) {
	docs := []Snapshotter{s.faces, s.conversations}
	res := &dto.ForceSaveResponse{Documents: make([]string, 0, len(docs))}

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if err := doc.Save(); err != nil {
			return nil, fmt.Errorf("save %s: %w", doc.Path(), err)
		}
		res.Documents = append(res.Documents, doc.Path())
	}
	res.SavedAt = s.now()

	if s.uploader == nil {
		return res, nil
	}
	for _, path := range res.Documents {
		name, err := s.uploader.UploadFile(ctx, path)
		if err != nil {
			s.logger.Error("ConversationService", "Backup upload failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		res.BackedUp = append(res.BackedUp, name)
	}
	return res, nil
}
