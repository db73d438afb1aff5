package wire

import (
	"Roger/internal/api"
	"Roger/internal/api/config"
	"Roger/internal/api/handler"
	"Roger/internal/job"
	"Roger/internal/pkg/audio"
	"Roger/internal/pkg/backend"
	"Roger/internal/pkg/cron"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/repository"
	"Roger/internal/service"

	"github.com/gin-gonic/gin"
)

const mainQueueSize = 256

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router   *gin.Engine
	CronMgr  *cron.Manager
	Queue    *dispatch.Queue
	Client   *backend.Client
	Device   *audio.VirtualDevice
	Session  *service.SessionService
	Streams  service.StreamService
	Contacts *service.ContactService
	Audio    *service.AudioService
	Push     *service.PushService
	Cache    *service.AudioCache
}

func BuildApplication(cfg *config.Config) (*ApplicationContainer, error) {
	queue := dispatch.NewQueue(mainQueueSize)
	locker := repository.NewLocker()

	sessionRepo := repository.NewSessionRepo(cfg.Cache.ContainerDir, locker)
	streamCacheRepo := repository.NewStreamCacheRepo(cfg.Cache.Dir, locker)
	positionRepo := repository.NewPlayPositionRepo(cfg.Cache.Dir, locker)
	contactCacheRepo := repository.NewContactCacheRepo(cfg.Cache.ContainerDir, locker)

	sessionService := service.NewSessionService(sessionRepo)
	client := backend.NewClient(cfg.Backend, sessionService.Token)
	sessionService.BindClient(client)

	contactService := service.NewContactService(
		queue,
		client,
		contactCacheRepo,
		service.NewFileContactSource(cfg.Contacts.AddressBookPath),
		sessionService,
		cfg.Contacts,
	)
	streamService := service.NewStreamService(
		queue,
		client,
		sessionService,
		streamCacheRepo,
		positionRepo,
		service.NewChunkUploader(sessionService),
		contactService,
	)

	audioCache := service.NewAudioCache(cfg.Cache, cfg.Audio)
	device := audio.NewVirtualDevice()
	audioService := service.NewAudioService(queue, device, streamService, audioCache, audioCache.TempDir(), cfg.Audio)
	pushService := service.NewPushService(queue, streamService, sessionService)

	cronMgr := cron.NewCronManager(
		job.NewAudioCacheCleanJob(audioCache),
		job.NewAccountRefreshJob(contactService),
		job.NewRetryFlushJob(client),
		job.NewStreamPersistJob(streamService),
	)

	handlers := &api.HandlersGroup{
		StreamHandler:  handler.NewStreamHandler(queue, streamService, audioService),
		AudioHandler:   handler.NewAudioHandler(queue, audioService, device),
		ContactHandler: handler.NewContactHandler(queue, contactService),
		SessionHandler: handler.NewSessionHandler(sessionService),
		PushHandler:    handler.NewPushHandler(pushService),
		WsHandler:      handler.NewWsHandler(queue, streamService, audioService, contactService, sessionService),
	}

	return &ApplicationContainer{
		Router:   api.SetupRouter(handlers, cfg.Server.ControlToken),
		CronMgr:  cronMgr,
		Queue:    queue,
		Client:   client,
		Device:   device,
		Session:  sessionService,
		Streams:  streamService,
		Contacts: contactService,
		Audio:    audioService,
		Push:     pushService,
		Cache:    audioCache,
	}, nil
}
