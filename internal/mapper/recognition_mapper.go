package mapper

import (
	"fmt"

	"companion-be/internal/dto"
	"companion-be/pkg/consensus"
	"companion-be/pkg/facestore"
)

type RecognitionMapper struct{}

func NewRecognitionMapper() *RecognitionMapper {
	return &RecognitionMapper{}
}

// ToResponse renders a consensus result for the kiosk.
func (m *RecognitionMapper) ToResponse(result consensus.Result) dto.RecognizeResponse {
	switch r := result.(type) {
	case consensus.Preliminary:
		return dto.RecognizeResponse{
			UserStatus:        dto.UserStatusDetecting,
			IsPreliminary:     true,
			DetectionProgress: r.Progress,
			TotalRequired:     r.Total,
			Message:           fmt.Sprintf("Collecting frames (%d/%d)", r.Progress, r.Total),
		}

	case consensus.Uncertain:
		ratio := r.Ratio
		return dto.RecognizeResponse{
			UserStatus:        dto.UserStatusUncertain,
			IsUncertain:       true,
			DetectionProgress: r.Progress,
			TotalRequired:     r.Total,
			ConsensusRatio:    &ratio,
			Message:           "Could not agree on who this is, try again",
		}

	case consensus.Confirmed:
		id, ratio := r.UserID, r.Ratio
		res := dto.RecognizeResponse{
			UserId:              &id,
			IsNewUser:           r.IsNewUser(),
			NeedsIdentification: r.NeedsIdentification(),
			IsConfirmed:         true,
			ConsensusRatio:      &ratio,
			VisitCount:          r.VisitCount,
		}
		switch r.Outcome {
		case consensus.OutcomeNewUser:
			res.UserStatus = dto.UserStatusNewUnknown
			res.Message = "New face enrolled"
		case consensus.OutcomeNeedsName:
			res.UserStatus = dto.UserStatusKnownUnnamed
			res.Message = "Known face without a name"
		default:
			name := r.UserName
			res.UserName = &name
			res.UserStatus = dto.UserStatusIdentified
			res.Message = fmt.Sprintf("Welcome back, %s", name)
		}
		return res
	}
	return dto.RecognizeResponse{UserStatus: dto.UserStatusDetecting}
}

type FaceUserMapper struct{}

func NewFaceUserMapper() *FaceUserMapper {
	return &FaceUserMapper{}
}

func (m *FaceUserMapper) ToResponse(u facestore.UserRecord) dto.FaceUserResponse {
	return dto.FaceUserResponse{
		Id:         u.ID,
		Name:       u.Name,
		HasName:    u.HasName(),
		Temporary:  u.Temporary,
		VisitCount: u.VisitCount,
		Samples:    len(u.Descriptors),
		CreatedAt:  u.CreatedAt,
		LastSeen:   u.LastSeen,
	}
}

func (m *FaceUserMapper) ToResponses(users []facestore.UserRecord) []dto.FaceUserResponse {
	out := make([]dto.FaceUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, m.ToResponse(u))
	}
	return out
}
