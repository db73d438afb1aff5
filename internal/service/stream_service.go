package service

import (
	"Roger/internal/model"
	"Roger/internal/pkg/backend"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/event"
	"Roger/internal/pkg/logger"
	"Roger/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"os"
	"sync"
	"time"
)

// purgeWindow SetStreamList(purge=true) 只清理当前排序前这么多个会话
const purgeWindow = 10

// Performer RPC 协作者
type Performer interface {
	Perform(ctx context.Context, in backend.Intent) backend.Result
}

// ChunkUploader 把录音上传到对象存储并返回可访问地址
type ChunkUploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// IdentifierNormalizer 电话/邮箱规范化
type IdentifierNormalizer interface {
	Normalize(identifier string) string
}

// StreamService 会话缓存与合并。
//
// 没有 ctx 参数的方法只能在主队列上调用；带 ctx 的方法会发起网络请求，
// 不能在主队列上调用，结果通过主队列合并。
type StreamService interface {
	UpsertFromPayload(p *model.StreamPayload) *model.Stream
	UpsertChunk(streamID int64, chunk model.ChunkPayload) *model.Stream
	SetStreamList(payloads []*model.StreamPayload, purge bool)
	IncludeInRecents(stream *model.Stream)
	RemoveFromRecents(stream *model.Stream)
	BeginBatch()
	EndBatch()
	Batch(fn func())
	GetStream(id int64) *model.Stream
	Recents() []*model.Stream
	ApplyStatus(streamID int64, status model.StatusPayload) bool
	SetPlayedUntil(stream *model.Stream, playedUntil int64)
	SavePlayPosition(streamID, timestamp int64)
	ClearPlayPosition(streamID int64)
	PlayPosition(streamID int64) (int64, bool)
	ReportStatus(streamID int64, status model.StatusKind, estimated time.Duration)
	SendChunk(streamID int64, path string, duration time.Duration, done func(error))
	Reset()

	LoadStreams(ctx context.Context) error
	LoadNextPage(ctx context.Context) (bool, error)
	FetchStream(ctx context.Context, streamID int64) (*model.Stream, error)
	ApplyChunkPush(ctx context.Context, streamID int64, chunk model.ChunkPayload) (*model.Stream, error)
	CreateStream(ctx context.Context, identifiers []string, title string) (*model.Stream, error)
	HideStream(ctx context.Context, streamID int64) error
	Persist(ctx context.Context) error
	Restore(ctx context.Context) error

	OnStreamsChanged(fn func(StreamsDiff)) (remove func())
	OnStreamChanged(fn func(*model.Stream)) (remove func())
}

type streamServiceImpl struct {
	queue      *dispatch.Queue
	client     Performer
	session    *SessionService
	cache      repository.StreamCacheRepo
	positions  repository.PlayPositionRepo
	uploader   ChunkUploader
	normalizer IdentifierNormalizer

	index      *streamIndex
	batchDepth int
	dirty      bool
	before     []int64
	cursor     string
	services   []map[string]any
	bots       []map[string]any

	statusMu      sync.Mutex
	statusPending []statusReport
	statusSending bool

	streamsChanged event.Event[StreamsDiff]
	streamChanged  event.Event[*model.Stream]
}

func NewStreamService(
	queue *dispatch.Queue,
	client Performer,
	session *SessionService,
	cache repository.StreamCacheRepo,
	positions repository.PlayPositionRepo,
	uploader ChunkUploader,
	normalizer IdentifierNormalizer,
) StreamService {
	return &streamServiceImpl{
		queue:      queue,
		client:     client,
		session:    session,
		cache:      cache,
		positions:  positions,
		uploader:   uploader,
		normalizer: normalizer,
		index:      newStreamIndex(),
	}
}

func (s *streamServiceImpl) OnStreamsChanged(fn func(StreamsDiff)) func() {
	return s.streamsChanged.AddListener(fn)
}

func (s *streamServiceImpl) OnStreamChanged(fn func(*model.Stream)) func() {
	return s.streamChanged.AddListener(fn)
}

// BeginBatch 开始批量更新，可重入
func (s *streamServiceImpl) BeginBatch() {
	if s.batchDepth == 0 {
		s.before = s.index.ids()
		s.dirty = false
	}
	s.batchDepth++
}

// EndBatch 最外层结束时排序并只发出一次列表变化
func (s *streamServiceImpl) EndBatch() {
	if s.batchDepth == 0 {
		log.Warn("EndBatch without BeginBatch")
		return
	}
	s.batchDepth--
	if s.batchDepth > 0 || !s.dirty {
		return
	}
	s.index.sort()
	diff := DiffIDs(s.before, s.index.ids())
	s.before = nil
	s.dirty = false
	s.streamsChanged.Emit(diff)
}

func (s *streamServiceImpl) Batch(fn func()) {
	s.BeginBatch()
	defer s.EndBatch()
	fn()
}

func (s *streamServiceImpl) selfID() int64 {
	if s.session == nil {
		return 0
	}
	return s.session.AccountID()
}

// UpsertFromPayload 合并已有会话或创建新会话，数据不完整时返回 nil
func (s *streamServiceImpl) UpsertFromPayload(p *model.StreamPayload) *model.Stream {
	if p == nil || p.ID == 0 {
		log.Warn("stream payload without id ignored")
		return nil
	}
	s.BeginBatch()
	defer s.EndBatch()

	if stream := s.index.get(p.ID); stream != nil {
		if stream.Merge(p) {
			s.afterChange(stream)
		}
		return stream
	}

	stream, err := model.NewStream(s.selfID(), p)
	if err != nil {
		log.Warn("stream payload rejected", "stream_id", p.ID, "err", err)
		return nil
	}
	s.index.register(stream)
	s.streamChanged.Emit(stream)
	return stream
}

// afterChange 会话内容变化后：隐藏的会话移出最近列表，在列表中的会话需要重新排序
func (s *streamServiceImpl) afterChange(stream *model.Stream) {
	if s.index.contains(stream.ID()) {
		if !stream.Visible() {
			s.index.remove(stream.ID())
		}
		s.dirty = true
	}
	s.streamChanged.Emit(stream)
}

// UpsertChunk 只合并到已知会话，未知会话返回 nil，由调用方拉取完整会话
func (s *streamServiceImpl) UpsertChunk(streamID int64, chunk model.ChunkPayload) *model.Stream {
	stream := s.index.get(streamID)
	if stream == nil {
		return nil
	}
	s.BeginBatch()
	defer s.EndBatch()

	changed, err := stream.AddChunk(chunk)
	if err != nil {
		log.Warn("chunk payload rejected", "stream_id", streamID, "err", err)
		return nil
	}
	if changed {
		s.afterChange(stream)
	}
	return stream
}

// SetStreamList 合并一页会话。purge 时当前排序前 10 个中不在本页的会话移出最近列表。
func (s *streamServiceImpl) SetStreamList(payloads []*model.StreamPayload, purge bool) {
	s.BeginBatch()
	defer s.EndBatch()

	s.index.sort()
	prior := s.index.ids()

	seen := make(map[int64]bool, len(payloads))
	for _, p := range payloads {
		stream := s.UpsertFromPayload(p)
		if stream == nil {
			continue
		}
		seen[stream.ID()] = true
		if !stream.Visible() {
			if s.index.remove(stream.ID()) {
				s.dirty = true
			}
			continue
		}
		if s.index.include(stream) {
			s.dirty = true
		}
	}

	if !purge {
		return
	}
	if len(prior) > purgeWindow {
		prior = prior[:purgeWindow]
	}
	for _, id := range prior {
		if !seen[id] && s.index.remove(id) {
			s.dirty = true
		}
	}
}

// IncludeInRecents 幂等地加入最近列表
func (s *streamServiceImpl) IncludeInRecents(stream *model.Stream) {
	if stream == nil {
		return
	}
	s.BeginBatch()
	defer s.EndBatch()
	if s.index.include(stream) {
		s.dirty = true
	}
}

// RemoveFromRecents 只移出列表，会话对象仍可通过弱引用取到
func (s *streamServiceImpl) RemoveFromRecents(stream *model.Stream) {
	if stream == nil {
		return
	}
	s.BeginBatch()
	defer s.EndBatch()
	if s.index.remove(stream.ID()) {
		s.dirty = true
	}
}

func (s *streamServiceImpl) GetStream(id int64) *model.Stream {
	return s.index.get(id)
}

// Recents 最近列表快照。批量更新期间可能尚未排序。
func (s *streamServiceImpl) Recents() []*model.Stream {
	return s.index.list()
}

// ApplyStatus 记录其他参与者的实时状态
func (s *streamServiceImpl) ApplyStatus(streamID int64, status model.StatusPayload) bool {
	if err := status.Validate(); err != nil {
		log.Warn("status payload rejected", "stream_id", streamID, "err", err)
		return false
	}
	stream := s.index.get(streamID)
	if stream == nil {
		return false
	}
	stream.SetStatus(status.AccountID, model.NewParticipantStatus(status, time.Now()))
	s.streamChanged.Emit(stream)
	return true
}

// SetPlayedUntil 先本地更新再上报，上报失败不回滚
func (s *streamServiceImpl) SetPlayedUntil(stream *model.Stream, playedUntil int64) {
	if stream == nil || !stream.SetPlayedUntil(playedUntil) {
		return
	}
	s.streamChanged.Emit(stream)

	streamID := stream.ID()
	ctx := logger.WithStreamID(logger.NewTraceContext(context.Background(), "played"), streamID)
	go func() {
		res := s.client.Perform(ctx, backend.SetPlayedUntil(streamID, playedUntil))
		if !res.Successful() {
			log.WarnContext(ctx, "report played until failed", "code", res.Code, "err", res.Err)
			return
		}
		if p := payloadFromResult(ctx, res); p != nil {
			_ = s.queue.Do(func() { s.UpsertFromPayload(p) })
		}
	}()
}

// SavePlayPosition 立即更新内存，文件在后台写入
func (s *streamServiceImpl) SavePlayPosition(streamID, timestamp int64) {
	if s.positions == nil {
		return
	}
	s.positions.Set(streamID, timestamp)
	s.flushPositions()
}

func (s *streamServiceImpl) ClearPlayPosition(streamID int64) {
	if s.positions == nil {
		return
	}
	if s.positions.Delete(streamID) {
		s.flushPositions()
	}
}

func (s *streamServiceImpl) flushPositions() {
	go func() {
		if err := s.positions.Flush(context.Background()); err != nil {
			log.Error("save play positions failed", "err", err)
		}
	}()
}

func (s *streamServiceImpl) PlayPosition(streamID int64) (int64, bool) {
	if s.positions == nil {
		return 0, false
	}
	return s.positions.Get(streamID)
}

type statusReport struct {
	streamID  int64
	status    model.StatusKind
	estimated time.Duration
}

// ReportStatus 上报当前用户的状态，按调用顺序依次发送，失败只记录日志
func (s *streamServiceImpl) ReportStatus(streamID int64, status model.StatusKind, estimated time.Duration) {
	if streamID == 0 {
		return
	}
	s.statusMu.Lock()
	s.statusPending = append(s.statusPending, statusReport{streamID: streamID, status: status, estimated: estimated})
	if s.statusSending {
		s.statusMu.Unlock()
		return
	}
	s.statusSending = true
	s.statusMu.Unlock()
	go s.sendStatuses()
}

// sendStatuses 同一时间只有一个发送者，队列清空后退出
func (s *streamServiceImpl) sendStatuses() {
	for {
		s.statusMu.Lock()
		if len(s.statusPending) == 0 {
			s.statusSending = false
			s.statusMu.Unlock()
			return
		}
		r := s.statusPending[0]
		s.statusPending = s.statusPending[1:]
		s.statusMu.Unlock()

		ctx := logger.WithStreamID(logger.NewTraceContext(context.Background(), "status"), r.streamID)
		res := s.client.Perform(ctx, backend.SetStatus(r.streamID, string(r.status), r.estimated.Milliseconds(), ""))
		if !res.Successful() {
			log.WarnContext(ctx, "report status failed", "status", r.status, "code", res.Code, "err", res.Err)
		}
	}
}

// SendChunk 发送录音文件。done 在主队列上调用。
// 没有响应时请求进入重试队列，done 先收到 ErrChunkQueued，重发得到响应后再调用一次。
func (s *streamServiceImpl) SendChunk(streamID int64, path string, duration time.Duration, done func(error)) {
	ctx := logger.WithStreamID(logger.NewTraceContext(context.Background(), "send"), streamID)
	finish := func(err error) {
		if done != nil {
			_ = s.queue.Do(func() { done(err) })
		}
	}
	go func() {
		audioURL := ""
		if s.uploader != nil {
			url, err := s.uploader.Upload(ctx, path)
			if err != nil {
				log.WarnContext(ctx, "object storage upload failed, falling back to multipart", "err", err)
			} else {
				audioURL = url
			}
		}

		in := backend.SendChunk(streamID, audioURL, path, duration.Milliseconds())
		in.OnRetried = func(res backend.Result) {
			finish(s.chunkSent(ctx, path, res))
		}
		res := s.client.Perform(ctx, in)
		if res.Queued {
			log.InfoContext(ctx, "chunk queued until backend is reachable")
			finish(ErrChunkQueued)
			return
		}
		finish(s.chunkSent(ctx, path, res))
	}()
}

// chunkSent 处理发送结果：成功时删除临时文件并合并返回的会话
func (s *streamServiceImpl) chunkSent(ctx context.Context, path string, res backend.Result) error {
	if !res.Successful() {
		log.ErrorContext(ctx, "send chunk failed", "code", res.Code, "err", res.Err)
		return fmt.Errorf("%w: %v", ErrBackend, res.Err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WarnContext(ctx, "remove sent recording failed", "path", path, "err", err)
	}
	if p := payloadFromResult(ctx, res); p != nil {
		_ = s.queue.Do(func() {
			if stream := s.UpsertFromPayload(p); stream != nil && stream.Visible() {
				s.IncludeInRecents(stream)
			}
		})
	}
	return nil
}

// Reset 切换账号时清空全部会话
func (s *streamServiceImpl) Reset() {
	s.BeginBatch()
	defer s.EndBatch()
	if len(s.index.recents) > 0 {
		s.dirty = true
	}
	s.index.reset()
	s.cursor = ""
	s.services = nil
	s.bots = nil
}

// LoadStreams 拉取第一页并清理不再出现的会话
func (s *streamServiceImpl) LoadStreams(ctx context.Context) error {
	_, err := s.loadPage(ctx, "", true)
	return err
}

// LoadNextPage 按游标拉取下一页，没有更多时返回 false
func (s *streamServiceImpl) LoadNextPage(ctx context.Context) (bool, error) {
	v, err := s.queue.Call(func() (interface{}, error) { return s.cursor, nil })
	if err != nil {
		return false, err
	}
	cursor := v.(string)
	if cursor == "" {
		return false, nil
	}
	return s.loadPage(ctx, cursor, false)
}

func (s *streamServiceImpl) loadPage(ctx context.Context, cursor string, purge bool) (bool, error) {
	if s.selfID() == 0 {
		return false, ErrNotLoggedIn
	}
	res := s.client.Perform(ctx, backend.GetStreams(cursor))
	if !res.Successful() {
		return false, fmt.Errorf("%w: get streams: %v", ErrBackend, res.Err)
	}

	raw := res.List("data")
	payloads := make([]*model.StreamPayload, 0, len(raw))
	for _, m := range raw {
		p, err := model.StreamPayloadFromMap(m)
		if err != nil {
			log.WarnContext(ctx, "stream in list rejected", "err", err)
			continue
		}
		payloads = append(payloads, p)
	}
	next := res.String("cursor")
	services := res.List("services")
	bots := res.List("bots")

	err := s.queue.Sync(func() {
		s.SetStreamList(payloads, purge)
		s.cursor = next
		if purge {
			s.services = services
			s.bots = bots
		}
	})
	if err != nil {
		return false, err
	}
	log.InfoContext(ctx, "streams loaded", "count", len(payloads), "purge", purge, "has_more", next != "")
	return next != "", nil
}

// FetchStream 拉取完整会话，可见时加入最近列表
func (s *streamServiceImpl) FetchStream(ctx context.Context, streamID int64) (*model.Stream, error) {
	res := s.client.Perform(ctx, backend.GetStream(streamID))
	if res.Code == 404 {
		return nil, ErrStreamNotFound
	}
	if !res.Successful() {
		return nil, fmt.Errorf("%w: get stream %d: %v", ErrBackend, streamID, res.Err)
	}
	p := payloadFromResult(ctx, res)
	if p == nil {
		return nil, fmt.Errorf("%w: stream %d", model.ErrMalformedPayload, streamID)
	}
	return s.upsertAndInclude(p)
}

func (s *streamServiceImpl) upsertAndInclude(p *model.StreamPayload) (*model.Stream, error) {
	v, err := s.queue.Call(func() (interface{}, error) {
		var stream *model.Stream
		s.Batch(func() {
			stream = s.UpsertFromPayload(p)
			if stream != nil && stream.Visible() {
				s.IncludeInRecents(stream)
			}
		})
		if stream == nil {
			return nil, fmt.Errorf("%w: stream %d", model.ErrMalformedPayload, p.ID)
		}
		return stream, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Stream), nil
}

// ApplyChunkPush 合并推送的分片，本地没有该会话时拉取完整会话
func (s *streamServiceImpl) ApplyChunkPush(ctx context.Context, streamID int64, chunk model.ChunkPayload) (*model.Stream, error) {
	v, err := s.queue.Call(func() (interface{}, error) {
		var stream *model.Stream
		s.Batch(func() {
			stream = s.UpsertChunk(streamID, chunk)
			if stream != nil && stream.Visible() {
				s.IncludeInRecents(stream)
			}
		})
		return stream, nil
	})
	if err != nil {
		return nil, err
	}
	if stream, _ := v.(*model.Stream); stream != nil {
		return stream, nil
	}
	log.InfoContext(ctx, "chunk for unknown stream, fetching", "stream_id", streamID)
	return s.FetchStream(ctx, streamID)
}

// CreateStream 按电话/邮箱或账号 id 创建会话
func (s *streamServiceImpl) CreateStream(ctx context.Context, identifiers []string, title string) (*model.Stream, error) {
	if len(identifiers) == 0 {
		return nil, ErrParamInvalid
	}
	normalized := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if s.normalizer != nil {
			id = s.normalizer.Normalize(id)
		}
		normalized = append(normalized, id)
	}
	res := s.client.Perform(ctx, backend.CreateStream(normalized, title))
	if !res.Successful() {
		return nil, fmt.Errorf("%w: create stream: %v", ErrBackend, res.Err)
	}
	p := payloadFromResult(ctx, res)
	if p == nil {
		return nil, fmt.Errorf("%w: created stream", model.ErrMalformedPayload)
	}
	return s.upsertAndInclude(p)
}

// HideStream 在后端隐藏会话并移出最近列表
func (s *streamServiceImpl) HideStream(ctx context.Context, streamID int64) error {
	res := s.client.Perform(ctx, backend.RemoveStream(streamID))
	if !res.Successful() {
		return fmt.Errorf("%w: hide stream %d: %v", ErrBackend, streamID, res.Err)
	}
	return s.queue.Sync(func() {
		s.RemoveFromRecents(s.index.get(streamID))
	})
}

// Persist 把最近列表写入当前账号的缓存文件
func (s *streamServiceImpl) Persist(ctx context.Context) error {
	accountID := s.selfID()
	if accountID == 0 {
		return nil
	}
	v, err := s.queue.Call(func() (interface{}, error) {
		s.index.prune()
		streams := s.index.list()
		cache := &repository.StreamCache{
			Streams:  make([]*model.StreamPayload, 0, len(streams)),
			Services: s.services,
			Bots:     s.bots,
			Cursor:   s.cursor,
		}
		for _, stream := range streams {
			cache.Streams = append(cache.Streams, stream.Payload())
		}
		return cache, nil
	})
	if err != nil {
		return err
	}
	cache := v.(*repository.StreamCache)
	if err := s.cache.Save(ctx, accountID, cache); err != nil {
		return fmt.Errorf("persist streams: %w", err)
	}
	if s.positions != nil {
		if err := s.positions.Flush(ctx); err != nil {
			return fmt.Errorf("persist play positions: %w", err)
		}
	}
	log.DebugContext(ctx, "streams persisted", "count", len(cache.Streams))
	return nil
}

// Restore 启动时从缓存恢复，不清理任何会话
func (s *streamServiceImpl) Restore(ctx context.Context) error {
	accountID := s.selfID()
	if accountID == 0 {
		return nil
	}
	cache, err := s.cache.Load(ctx, accountID)
	if err != nil {
		log.WarnContext(ctx, "stream cache unreadable", "err", err)
	}
	if cache == nil || len(cache.Streams) == 0 {
		return nil
	}
	if s.positions != nil {
		if err := s.positions.Load(ctx); err != nil {
			log.WarnContext(ctx, "play positions unreadable", "err", err)
		}
	}
	err = s.queue.Sync(func() {
		s.SetStreamList(cache.Streams, false)
		s.cursor = cache.Cursor
		s.services = cache.Services
		s.bots = cache.Bots
	})
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "streams restored", "count", len(cache.Streams))
	return nil
}

// payloadFromResult 返回数据可能是会话本身，也可能放在 stream 字段中
func payloadFromResult(ctx context.Context, res backend.Result) *model.StreamPayload {
	data := res.Object("stream")
	if data == nil {
		data = res.Data
	}
	if data == nil {
		return nil
	}
	p, err := model.StreamPayloadFromMap(data)
	if err != nil {
		log.WarnContext(ctx, "stream in response rejected", "err", err)
		return nil
	}
	return p
}
