package service

import (
	"context"
	"os"
	"runtime"
	"time"

	"companion-be/internal/dto"
	"companion-be/internal/mapper"
	"companion-be/internal/pkg/logger"
	"companion-be/pkg/conversation"
	"companion-be/pkg/coordinator"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

type IAdminService interface {
	GetLogs(ctx context.Context, level string, page, limit int) (*dto.LogPage, error)
	GetLogDetail(ctx context.Context, id string) (*dto.LogDetailResponse, error)
	Health(ctx context.Context) (*dto.HealthResponse, error)
}

type LogReader interface {
	GetLogs(level string, limit, offset int) ([]logger.LogEntry, error)
	GetLogById(id string) (*logger.LogEntry, error)
}

// HealthSources are the counters the health report reads.
type HealthSources struct {
	Coordinator   interface{ Stats() coordinator.Stats }
	Faces         interface{ Len() int }
	Conversations interface{ Stats() conversation.Stats }
	Detections    interface{ Count() int }
	EventBus      bool
}

type adminService struct {
	logs      LogReader
	sources   HealthSources
	mapper    *mapper.LogMapper
	startedAt time.Time
}

func NewAdminService(logs LogReader, sources HealthSources) IAdminService {
	return &adminService{
		logs:      logs,
		sources:   sources,
		mapper:    mapper.NewLogMapper(),
		startedAt: time.Now(),
	}
}

func (s *adminService) GetLogs(ctx context.Context, level string, page, limit int) (*dto.LogPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	entries, err := s.logs.GetLogs(level, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	out := &dto.LogPage{Items: make([]dto.LogListResponse, 0, len(entries)), Page: page, Limit: limit}
	for _, e := range entries {
		out.Items = append(out.Items, s.mapper.ToListResponse(e))
	}
	return out, nil
}

func (s *adminService) GetLogDetail(ctx context.Context, id string) (*dto.LogDetailResponse, error) {
	entry, err := s.logs.GetLogById(id)
	if err != nil {
		return nil, err
	}
	res := s.mapper.ToDetailResponse(*entry)
	return &res, nil
}

func (s *adminService) Health(ctx context.Context) (*dto.HealthResponse, error) {
	res := &dto.HealthResponse{
		Status:     "ok",
		StartedAt:  s.startedAt,
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		EventBus:   s.sources.EventBus,
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		res.HostMemUsed = vm.UsedPercent
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			res.ProcessRSS = info.RSS
		}
	}

	if c := s.sources.Coordinator; c != nil {
		st := c.Stats()
		res.Connections = st.Connections
		res.Operators = st.Operators
		res.PendingNames = st.PendingIdentifications
	}
	if f := s.sources.Faces; f != nil {
		res.FaceUsers = f.Len()
	}
	if cv := s.sources.Conversations; cv != nil {
		res.Conversations = cv.Stats().Users
	}
	if d := s.sources.Detections; d != nil {
		res.Detection = d.Count()
	}
	return res, nil
}
