package mapper

import (
	"companion-be/internal/dto"
	"companion-be/internal/pkg/logger"
	"companion-be/pkg/conversation"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

func (m *ConversationMapper) ToStats(s conversation.Stats) dto.ConversationStatsResponse {
	res := dto.ConversationStatsResponse{
		Users:          s.Users,
		Sessions:       s.Sessions,
		ActiveSessions: s.ActiveSessions,
		Messages:       s.Messages,
	}
	if !s.LastSavedAt.IsZero() {
		t := s.LastSavedAt
		res.LastSavedAt = &t
	}
	return res
}

func (m *ConversationMapper) ToSession(s conversation.Session) dto.ConversationSessionResponse {
	msgs := make([]dto.ConversationMessageResponse, 0, len(s.Messages))
	for _, msg := range s.Messages {
		msgs = append(msgs, dto.ConversationMessageResponse{
			Id:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
			Metadata:  msg.Metadata,
		})
	}
	return dto.ConversationSessionResponse{
		Id:        s.ID,
		UserId:    s.UserID,
		IsActive:  s.IsActive,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Messages:  msgs,
	}
}

func (m *ConversationMapper) ToHistory(userID string, sessions []conversation.Session) dto.ConversationHistoryResponse {
	out := dto.ConversationHistoryResponse{UserId: userID, Sessions: make([]dto.ConversationSessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, m.ToSession(s))
	}
	return out
}

type LogMapper struct{}

func NewLogMapper() *LogMapper {
	return &LogMapper{}
}

func (m *LogMapper) ToListResponse(e logger.LogEntry) dto.LogListResponse {
	return dto.LogListResponse{
		Id:        e.Id,
		Level:     e.Level,
		Module:    e.Module,
		Message:   e.Message,
		CreatedAt: e.Timestamp,
	}
}

func (m *LogMapper) ToDetailResponse(e logger.LogEntry) dto.LogDetailResponse {
	return dto.LogDetailResponse{LogListResponse: m.ToListResponse(e), Details: e.Details}
}
