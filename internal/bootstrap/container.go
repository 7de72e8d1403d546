package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"companion-be/internal/config"
	"companion-be/internal/controller"
	"companion-be/internal/handler"
	"companion-be/internal/pkg/logger"
	"companion-be/internal/repository/memory"
	"companion-be/internal/scheduler"
	"companion-be/internal/service"
	"companion-be/internal/websocket"
	"companion-be/pkg/backup"
	"companion-be/pkg/consensus"
	"companion-be/pkg/conversation"
	"companion-be/pkg/coordinator"
	"companion-be/pkg/dialogue"
	"companion-be/pkg/embedding"
	"companion-be/pkg/events"
	"companion-be/pkg/facestore"
	"companion-be/pkg/llm"
	"companion-be/pkg/llm/factory"
	"companion-be/pkg/persist"
	"companion-be/pkg/voice/stt"
	"companion-be/pkg/voice/tts"

	pktNats "companion-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const (
	faceDocument         = "faces"
	conversationDocument = "conversations"
)

type Container struct {
	// Controllers
	FaceController         controller.IFaceController
	ConversationController controller.IConversationController
	AdminController        controller.IAdminController

	// Realtime
	RealtimeHandler *handler.RealtimeHandler
	WebSocketHub    *websocket.Hub
	Coordinator     *coordinator.Coordinator

	// Background workers, started by Start
	Scheduler    *scheduler.Scheduler
	Monitor      *service.MonitorService
	PersistQueue *persist.Queue

	ConversationService service.IConversationService
	Logger              *logger.ZapLogger

	pubSub  *gochannel.GoChannel
	natsPub *pktNats.Publisher
	natsSub *pktNats.Subscriber
	rdb     *redis.Client
}

func NewContainer(cfg *config.Config) (*Container, error) {
	ctx := context.Background()

	// 1. Loggers
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	rtLogger := logger.NewIsolatedLogger(cfg.App.RealtimeLogPath)

	persona, err := config.LoadPersona(cfg.App.PersonaPath)
	if err != nil {
		return nil, err
	}

	// 2. Document stores
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	for _, p := range []string{cfg.Storage.FaceStorePath, cfg.Storage.ConversationPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	faces, err := facestore.Open(cfg.Storage.FaceStorePath, cfg.Recognition.MaxSamples)
	if err != nil {
		return nil, fmt.Errorf("open face store: %w", err)
	}
	convs, err := conversation.Open(cfg.Storage.ConversationPath, conversation.Options{
		MaxMessagesPerSession: cfg.Conversation.MaxMessagesPerSession,
		MaxSessionsPerUser:    cfg.Conversation.MaxSessionsPerUser,
		SaveEvery:             cfg.Conversation.SaveEvery,
	}, sysLogger)
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	log.Printf("[INFO] Loaded %d face users from %s", faces.Len(), faces.Path())

	// 3. Snapshot queue (single writer per document)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)
	queue := persist.NewQueue(pubSub, persist.DefaultTopic, sysLogger)
	queue.Register(faceDocument, faces.Save)
	queue.Register(conversationDocument, convs.Save)
	convs.SetSaveRequester(queue.Requester(conversationDocument))

	// 4. Infrastructure, all optional
	var (
		publisher events.Publisher
		natsPub   *pktNats.Publisher
		natsSub   *pktNats.Subscriber
	)
	if cfg.App.NatsURL != "" {
		if natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL); err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
			natsPub = nil
		} else {
			publisher = natsPub
		}
		if natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL); err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
			natsSub = nil
		}
	}

	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
	}

	wsHub := websocket.NewHub(rdb, rtLogger)

	// 5. Dialogue and voice
	llmProvider, err := factory.NewLLMProvider(ctx, factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.Ai.LLMBaseURL,
		APIKey:   cfg.Ai.LLMAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	dialogueService := dialogue.NewService(llmProvider, persona.Dialogue(),
		llm.WithTemperature(cfg.Ai.Temperature),
		llm.WithMaxTokens(cfg.Ai.MaxTokens),
	)

	var synthesizer coordinator.Synthesizer
	if cfg.Voice.ElevenLabsAPIKey != "" {
		synthesizer = tts.NewElevenLabs(cfg.Voice.ElevenLabsAPIKey, cfg.Voice.VoiceID)
	} else {
		log.Printf("[INFO] ELEVENLABS_API_KEY not set, replies are text only")
	}
	var transcriber coordinator.Transcriber
	if cfg.Voice.CartesiaAPIKey != "" {
		transcriber = stt.NewCartesia(cfg.Voice.CartesiaAPIKey)
	}

	// 6. Session coordinator
	coord := coordinator.New(coordinator.Deps{
		Sessions:      memory.NewSessionRepository(),
		Cooldowns:     memory.NewCooldownRepository(cfg.Session.GreetCooldown),
		Faces:         faces,
		Conversations: convs,
		Dialogue:      dialogueService,
		Notifier:      wsHub,
		Synthesizer:   synthesizer,
		Transcriber:   transcriber,
		Publisher:     publisher,
		Clock:         coordinator.SystemClock,
		Logger:        rtLogger,
	}, coordinator.Config{
		IdentifyDelay:   cfg.Session.IdentifyDelay,
		ContextMessages: cfg.Conversation.ContextMessages,
		Voice:           cfg.Voice.VoiceID,
		AudioFormat:     cfg.Voice.AudioFormat,
		Language:        cfg.Voice.Language,
	}, persona.Prompts)

	// 7. Recognition
	collector := consensus.NewCollector(cfg.Recognition.BatchSize)
	detections := memory.NewDetectionSessionRepository(cfg.Recognition.DetectionTTL, cfg.Recognition.DetectionSweep)
	detections.OnExpire(func(sessionID string) {
		collector.Reset(sessionID)
	})
	matcher := consensus.NewMatcher(
		embedding.NewHTTPProvider(cfg.Recognition.ModelURL, cfg.Recognition.ModelTimeout),
		faces,
		consensus.Config{
			BatchSize:      cfg.Recognition.BatchSize,
			MatchThreshold: cfg.Recognition.MatchThreshold,
			MinRatio:       cfg.Recognition.MinRatio,
			DistanceScale:  cfg.Recognition.DistanceScale,
		},
		sysLogger,
	)
	recognitionService := service.NewRecognitionService(matcher, collector, detections, coord, publisher, sysLogger)

	// 8. Archive, backup and admin
	var uploader service.Uploader
	if cfg.Backup.Endpoint != "" {
		client, err := backup.NewClient(backup.Config{
			Endpoint:  cfg.Backup.Endpoint,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
			Bucket:    cfg.Backup.Bucket,
			Prefix:    cfg.Backup.Prefix,
			UseSSL:    cfg.Backup.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize backup client: %w", err)
		}
		if err := client.Init(ctx); err != nil {
			log.Printf("[WARN] Backup bucket not ready: %v", err)
		}
		uploader = client
	}

	faceService := service.NewFaceService(faces, sysLogger)
	conversationService := service.NewConversationService(convs, faces, uploader, cfg.Schedule.CleanupDaysOld, sysLogger)
	adminService := service.NewAdminService(sysLogger, service.HealthSources{
		Coordinator:   coord,
		Faces:         faces,
		Conversations: convs,
		Detections:    detections,
		EventBus:      publisher != nil,
	})

	sched, err := scheduler.New(conversationService, scheduler.Config{
		CleanupSpec:   cfg.Schedule.CleanupSpec,
		ForceSaveSpec: cfg.Schedule.ForceSaveSpec,
	}, sysLogger)
	if err != nil {
		return nil, err
	}

	var monitor *service.MonitorService
	if natsSub != nil {
		monitor = service.NewMonitorService(natsSub, wsHub, rtLogger)
	}

	// 9. Controllers
	return &Container{
		FaceController:         controller.NewFaceController(recognitionService, faceService),
		ConversationController: controller.NewConversationController(conversationService),
		AdminController:        controller.NewAdminController(adminService),

		RealtimeHandler: handler.NewRealtimeHandler(coord, wsHub, rtLogger),
		WebSocketHub:    wsHub,
		Coordinator:     coord,

		Scheduler:    sched,
		Monitor:      monitor,
		PersistQueue: queue,

		ConversationService: conversationService,
		Logger:              sysLogger,

		pubSub:  pubSub,
		natsPub: natsPub,
		natsSub: natsSub,
		rdb:     rdb,
	}, nil
}

// Start launches the background workers. They stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) error {
	if err := c.PersistQueue.Consume(ctx); err != nil {
		return fmt.Errorf("start snapshot queue: %w", err)
	}

	go c.WebSocketHub.Run(ctx)

	if c.Monitor != nil {
		if err := c.Monitor.Start(ctx); err != nil {
			log.Printf("[WARN] Identity monitor not started: %v", err)
		}
	}

	c.Scheduler.Start()
	return nil
}

// Shutdown stops the workers and writes both stores one last time.
func (c *Container) Shutdown(ctx context.Context) error {
	c.Scheduler.Stop(ctx)
	c.Coordinator.Close()

	_, saveErr := c.ConversationService.ForceSave(ctx)
	if saveErr != nil {
		c.Logger.Error("Container", "Final save failed", map[string]interface{}{"error": saveErr.Error()})
	}

	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	_ = c.pubSub.Close()
	_ = c.Logger.Sync()
	return saveErr
}
