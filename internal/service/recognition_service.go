package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion-be/internal/dto"
	"companion-be/internal/mapper"
	"companion-be/internal/pkg/logger"
	"companion-be/internal/repository/memory"
	"companion-be/pkg/consensus"
	"companion-be/pkg/coordinator"
	"companion-be/pkg/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type IRecognitionService interface {
	Recognize(ctx context.Context, req dto.RecognizeRequest) (*dto.RecognizeResponse, error)
	ResetDetection(ctx context.Context, req dto.ResetDetectionRequest) (*dto.ResetDetectionResponse, error)
}

type Matcher interface {
	Match(ctx context.Context, batch consensus.Batch, knownUserID string) (consensus.Result, error)
}

// ConsensusSink receives results for frames that came from a realtime connection.
type ConsensusSink interface {
	HandleConsensus(ctx context.Context, connectionID string, result consensus.Result) error
}

type recognitionService struct {
	matcher    Matcher
	collector  *consensus.Collector
	detections *memory.DetectionSessionRepository
	sink       ConsensusSink
	publisher  events.Publisher
	mapper     *mapper.RecognitionMapper
	logger     logger.ILogger
}

// NewRecognitionService wires the recognizer. publisher may be nil.
func NewRecognitionService(
	matcher Matcher,
	collector *consensus.Collector,
	detections *memory.DetectionSessionRepository,
	sink ConsensusSink,
	publisher events.Publisher,
	log logger.ILogger,
) IRecognitionService {
	return &recognitionService{
		matcher:    matcher,
		collector:  collector,
		detections: detections,
		sink:       sink,
		publisher:  publisher,
		mapper:     mapper.NewRecognitionMapper(),
		logger:     log,
	}
}

func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, ErrInvalidImage
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(data) == 0 {
		return nil, ErrInvalidImage
	}
	return data, nil
}

func (s *recognitionService) Recognize(ctx context.Context, req dto.RecognizeRequest) (res *dto.RecognizeResponse, err error) {
	ctx, span := otel.Tracer("companion-be/recognition").Start(ctx, "RecognitionService.Recognize")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("detection.session_id", req.SessionId),
		attribute.Int("detection.frames", len(req.Images)),
	)

	frames := make([]consensus.Frame, 0, len(req.Images))
	for i, img := range req.Images {
		data, err := decodeImage(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		frames = append(frames, consensus.Frame{Image: data})
	}

	s.detections.Touch(req.SessionId, req.ClientId)

	batch, err := s.collector.Add(req.SessionId, frames)
	if err != nil {
		return nil, err
	}
	if batch.Full() {
		defer s.collector.Release(req.SessionId)
	}

	result, err := s.matcher.Match(ctx, batch, req.UserId)
	if err != nil {
		if errors.Is(err, consensus.ErrModelUnavailable) {
			s.logger.Warn("RecognitionService", "Face model unavailable", map[string]interface{}{"session_id": req.SessionId})
		}
		return nil, err
	}

	if confirmed, ok := result.(consensus.Confirmed); ok {
		span.SetAttributes(
			attribute.String("identity.user_id", confirmed.UserID),
			attribute.String("identity.outcome", confirmed.Outcome.String()),
		)
	}
	s.deliver(ctx, req, result)

	out := s.mapper.ToResponse(result)
	return &out, nil
}

// deliver forwards the result to the realtime connection that sent the frames,
// or straight to the bus when the frames did not come with one.
func (s *recognitionService) deliver(ctx context.Context, req dto.RecognizeRequest, result consensus.Result) {
	if req.ConnectionId != "" && s.sink != nil {
		err := s.sink.HandleConsensus(ctx, req.ConnectionId, result)
		if err == nil {
			return
		}
		s.logger.Warn("RecognitionService", "Could not apply result to connection", map[string]interface{}{
			"connection_id": req.ConnectionId,
			"error":         err.Error(),
		})
		if !errors.Is(err, coordinator.ErrUnknownConnection) {
			return
		}
	}

	confirmed, ok := result.(consensus.Confirmed)
	if !ok || s.publisher == nil {
		return
	}
	eventType := events.UserIdentified
	if confirmed.IsNewUser() {
		eventType = events.UserEnrolled
	}
	evt := events.NewIdentityEvent(eventType, "", confirmed.UserID, map[string]interface{}{
		"user_name":            confirmed.UserName,
		"consensus_ratio":      confirmed.Ratio,
		"needs_identification": confirmed.NeedsIdentification(),
		"session_id":           req.SessionId,
	}, time.Now())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("RecognitionService", "Failed to publish identity event", map[string]interface{}{"error": err.Error()})
	}
}

func (s *recognitionService) ResetDetection(ctx context.Context, req dto.ResetDetectionRequest) (*dto.ResetDetectionResponse, error) {
	cleared := s.collector.Reset(req.SessionId)
	s.logger.Info("RecognitionService", "Detection batch reset", map[string]interface{}{
		"session_id": req.SessionId,
		"cleared":    cleared,
	})
	return &dto.ResetDetectionResponse{SessionId: req.SessionId, Cleared: cleared}, nil
}
