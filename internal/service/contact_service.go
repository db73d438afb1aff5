package service

import (
	"Roger/internal/api/config"
	"Roger/internal/model"
	"Roger/internal/pkg/backend"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/event"
	"Roger/internal/pkg/logger"
	"Roger/internal/pkg/util"
	"Roger/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultLookupBatchSize = 500
	defaultRefreshInterval = 12 * time.Hour
)

// ContactService 通讯录与后端账号的匹配。
// 索引只在主队列上读写；网络请求与文件读写在后台执行，结果投递回主队列。
type ContactService struct {
	queue   *dispatch.Queue
	client  Performer
	repo    repository.ContactCacheRepo
	source  ContactSource
	session *SessionService

	defaultRegion   string
	batchSize       int
	refreshInterval time.Duration

	contacts            []*model.ContactEntry
	contactsByID        map[string]*model.ContactEntry
	contactByIdentifier map[string]*model.ContactEntry
	accounts            map[string]model.AccountEntry
	identifierByAccount map[int64]string
	uninvited           map[string]bool
	invited             map[string]bool
	refreshedAt         time.Time
	refreshing          bool

	// ContactsChanged 通讯录或匹配结果变化
	ContactsChanged event.Event[int]
}

func NewContactService(
	queue *dispatch.Queue,
	client Performer,
	repo repository.ContactCacheRepo,
	source ContactSource,
	session *SessionService,
	cfg config.ContactsConfig,
) *ContactService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > defaultLookupBatchSize {
		batchSize = defaultLookupBatchSize
	}
	refresh := time.Duration(cfg.RefreshHours) * time.Hour
	if refresh <= 0 {
		refresh = defaultRefreshInterval
	}
	return &ContactService{
		queue:               queue,
		client:              client,
		repo:                repo,
		source:              source,
		session:             session,
		defaultRegion:       cfg.DefaultRegion,
		batchSize:           batchSize,
		refreshInterval:     refresh,
		contactsByID:        make(map[string]*model.ContactEntry),
		contactByIdentifier: make(map[string]*model.ContactEntry),
		accounts:            make(map[string]model.AccountEntry),
		identifierByAccount: make(map[int64]string),
		uninvited:           make(map[string]bool),
		invited:             make(map[string]bool),
	}
}

// Normalize 地区优先取会话中运营商推断的地区，其次是配置的默认地区
func (s *ContactService) Normalize(identifier string) string {
	return s.NormalizeWithRegion(identifier, "")
}

// NormalizeWithRegion 显式指定地区
func (s *ContactService) NormalizeWithRegion(identifier, region string) string {
	if region == "" && s.session != nil {
		region = s.session.Region()
	}
	if region == "" {
		region = s.defaultRegion
	}
	return NormalizeIdentifier(identifier, region)
}

// Load 读取缓存并立即展示；账号索引过期时在后台刷新，不阻塞加载
func (s *ContactService) Load(ctx context.Context) error {
	contacts, err := s.repo.LoadContacts(ctx)
	if err != nil {
		log.WarnContext(ctx, "contact cache unreadable", "err", err)
	}
	index, err := s.repo.LoadAccounts(ctx)
	if err != nil {
		log.WarnContext(ctx, "account cache unreadable", "err", err)
	}

	return s.queue.Sync(func() {
		if index != nil {
			s.accounts = index.Entries
			s.refreshedAt = index.RefreshedAt
		}
		s.setContacts(contacts)
		log.InfoContext(ctx, "contacts loaded", "contacts", len(s.contacts), "accounts", len(s.accounts))
		s.refreshIfStale(ctx, time.Now())
	})
}

// RefreshIfStale 供定时任务调用
func (s *ContactService) RefreshIfStale(ctx context.Context) error {
	return s.queue.Do(func() { s.refreshIfStale(ctx, time.Now()) })
}

// Stale 账号索引距上次全量刷新超过刷新间隔。主队列调用。
func (s *ContactService) Stale(now time.Time) bool {
	return now.Sub(s.refreshedAt) >= s.refreshInterval
}

func (s *ContactService) refreshIfStale(ctx context.Context, now time.Time) {
	if !s.Stale(now) || s.refreshing || len(s.contactByIdentifier) == 0 {
		return
	}
	s.refreshing = true
	identifiers := make([]string, 0, len(s.contactByIdentifier))
	for id := range s.contactByIdentifier {
		identifiers = append(identifiers, id)
	}
	sort.Strings(identifiers)
	log.InfoContext(ctx, "account index stale, refreshing", "identifiers", len(identifiers))

	s.updateAccountActiveState(ctx, identifiers, true, func(bool) {
		s.refreshing = false
	})
}

// ImportContacts 在后台枚举通讯录。没有权限且 requestAccess 为 false，或权限被拒绝时不会枚举。
// done 在主队列上调用，参数为是否完成了导入。
func (s *ContactService) ImportContacts(requestAccess bool, done func(bool)) {
	ctx := logger.NewTraceContext(context.Background(), "contacts")
	finish := func(ok bool) {
		if done != nil {
			_ = s.queue.Do(func() { done(ok) })
		}
	}
	go func() {
		authorized := s.source.Authorized()
		if !authorized && requestAccess {
			authorized = s.source.RequestAccess(ctx)
		}
		if !authorized {
			log.InfoContext(ctx, "contacts permission not granted")
			finish(false)
			return
		}

		raw, err := s.source.Contacts(ctx)
		if err != nil {
			log.ErrorContext(ctx, "enumerate contacts failed", "err", err)
			finish(false)
			return
		}
		entries := s.buildEntries(ctx, raw)

		if err := s.repo.SaveContacts(ctx, entries); err != nil {
			log.ErrorContext(ctx, "persist contacts failed", "err", err)
		}

		_ = s.queue.Do(func() {
			s.setContacts(entries)
			unknown := make([]string, 0)
			for id := range s.contactByIdentifier {
				if _, ok := s.accounts[id]; !ok {
					unknown = append(unknown, id)
				}
			}
			sort.Strings(unknown)
			log.InfoContext(ctx, "contacts imported", "contacts", len(entries), "unmatched", len(unknown))
			if len(unknown) > 0 {
				s.updateAccountActiveState(ctx, unknown, false, nil)
			}
			if done != nil {
				done(true)
			}
		})
	}()
}

// buildEntries 规范化标识、生成头像缩略图，没有任何标识的联系人被丢弃
func (s *ContactService) buildEntries(ctx context.Context, raw []model.DeviceContact) []*model.ContactEntry {
	entries := make([]*model.ContactEntry, 0, len(raw))
	for _, c := range raw {
		entry := &model.ContactEntry{
			ID:          c.ID,
			Name:        c.DisplayName(),
			Identifiers: make(map[string]string),
		}
		for _, p := range c.Phones {
			entry.Identifiers[s.Normalize(p.Value)] = p.Label
		}
		for _, e := range c.Emails {
			entry.Identifiers[s.Normalize(e.Value)] = e.Label
		}
		delete(entry.Identifiers, "")
		if len(entry.Identifiers) == 0 || entry.ID == "" {
			continue
		}
		if len(c.Image) > 0 {
			thumb, err := util.MakeThumbnail(c.Image, util.ThumbnailSize)
			if err != nil {
				log.DebugContext(ctx, "contact image skipped", "contact_id", c.ID, "err", err)
			} else {
				entry.ImageData = thumb
			}
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries
}

// setContacts 替换联系人列表并重建索引，主队列调用
func (s *ContactService) setContacts(entries []*model.ContactEntry) {
	s.contacts = entries
	s.contactsByID = make(map[string]*model.ContactEntry, len(entries))
	s.contactByIdentifier = make(map[string]*model.ContactEntry)
	for _, c := range entries {
		s.contactsByID[c.ID] = c
		for id := range c.Identifiers {
			s.contactByIdentifier[id] = c
		}
	}
	s.rebuildAccountIndex()
	s.ContactsChanged.Emit(len(s.contacts))
}

// rebuildAccountIndex 重建账号 -> 标识反查表与未邀请集合
func (s *ContactService) rebuildAccountIndex() {
	s.identifierByAccount = make(map[int64]string, len(s.accounts))
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := s.accounts[id]
		if entry.AccountID == 0 {
			continue
		}
		prev, ok := s.identifierByAccount[entry.AccountID]
		if !ok || (s.contactByIdentifier[prev] == nil && s.contactByIdentifier[id] != nil) {
			s.identifierByAccount[entry.AccountID] = id
		}
	}

	s.uninvited = make(map[string]bool)
	for _, c := range s.contacts {
		if !s.hasActiveAccount(c) && !s.invited[c.ID] {
			s.uninvited[c.ID] = true
		}
	}
}

func (s *ContactService) hasActiveAccount(c *model.ContactEntry) bool {
	for id := range c.Identifiers {
		if entry, ok := s.accounts[id]; ok && entry.Active {
			return true
		}
	}
	return false
}

// UpdateAccountActiveState 按每批最多 500 个并发查询。全部批次完成后合并、持久化，
// 并在主队列上调用一次 callback，参数为是否发现了新的活跃账号。可在任意 goroutine 调用。
func (s *ContactService) UpdateAccountActiveState(ctx context.Context, identifiers []string, callback func(discovered bool)) {
	_ = s.queue.Do(func() {
		s.updateAccountActiveState(ctx, identifiers, false, callback)
	})
}

// updateAccountActiveState 主队列调用，full 为 true 时视为一次全量刷新
func (s *ContactService) updateAccountActiveState(ctx context.Context, identifiers []string, full bool, callback func(bool)) {
	normalized := make([]string, 0, len(identifiers))
	seen := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		n := s.Normalize(id)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	batches := util.Batch(normalized, s.batchSize)

	go func() {
		results := make([][]model.AccountEntry, len(batches))
		var g errgroup.Group
		for i, batch := range batches {
			g.Go(func() error {
				entries, err := s.lookup(ctx, batch)
				results[i] = entries
				return err
			})
		}
		err := g.Wait()
		if err != nil {
			log.WarnContext(ctx, "account lookup incomplete", "batches", len(batches), "err", err)
		}

		_ = s.queue.Do(func() {
			discovered := s.mergeAccounts(results)
			if full && err == nil {
				s.refreshedAt = time.Now()
			}
			s.persistAccounts(ctx)
			log.InfoContext(ctx, "account index updated", "identifiers", len(normalized), "batches", len(batches), "discovered", discovered)
			if callback != nil {
				callback(discovered)
			}
		})
	}()
}

func (s *ContactService) lookup(ctx context.Context, identifiers []string) ([]model.AccountEntry, error) {
	res := s.client.Perform(ctx, backend.LookupIdentifiers(identifiers))
	if !res.Successful() {
		return nil, fmt.Errorf("%w: lookup %d identifiers: %v", ErrBackend, len(identifiers), res.Err)
	}
	return accountEntriesFromResult(res), nil
}

func accountEntriesFromResult(res backend.Result) []model.AccountEntry {
	raw := res.List("data")
	entries := make([]model.AccountEntry, 0, len(raw))
	for _, m := range raw {
		identifier, _ := m["identifier"].(string)
		accountID, _ := backend.ParamInt64(m, "account_id")
		if identifier == "" {
			continue
		}
		active, _ := m["active"].(bool)
		entries = append(entries, model.AccountEntry{Identifier: identifier, AccountID: accountID, Active: active})
	}
	return entries
}

// mergeAccounts 主队列调用，返回是否出现了此前不活跃或未知的活跃账号
func (s *ContactService) mergeAccounts(results [][]model.AccountEntry) bool {
	discovered := false
	for _, batch := range results {
		for _, entry := range batch {
			old, ok := s.accounts[entry.Identifier]
			if entry.Active && (!ok || !old.Active) {
				discovered = true
			}
			s.accounts[entry.Identifier] = entry
		}
	}
	s.rebuildAccountIndex()
	s.ContactsChanged.Emit(len(s.contacts))
	return discovered
}

// persistAccounts 主队列调用，写文件放到后台
func (s *ContactService) persistAccounts(ctx context.Context) {
	index := &repository.AccountIndex{
		RefreshedAt: s.refreshedAt,
		Entries:     make(map[string]model.AccountEntry, len(s.accounts)),
	}
	for k, v := range s.accounts {
		index.Entries[k] = v
	}
	go func() {
		if err := s.repo.SaveAccounts(ctx, index); err != nil {
			log.ErrorContext(ctx, "persist account index failed", "err", err)
		}
	}()
}

// FindContactByAccountID 主队列调用
func (s *ContactService) FindContactByAccountID(accountID int64) *model.ContactEntry {
	id, ok := s.identifierByAccount[accountID]
	if !ok {
		return nil
	}
	return s.contactByIdentifier[id]
}

// FindContactByIdentifiers 返回第一个匹配的联系人，主队列调用
func (s *ContactService) FindContactByIdentifiers(identifiers []string) *model.ContactEntry {
	for _, id := range identifiers {
		if c, ok := s.contactByIdentifier[id]; ok {
			return c
		}
		if c, ok := s.contactByIdentifier[s.Normalize(id)]; ok {
			return c
		}
	}
	return nil
}

// FindContactByID 主队列调用
func (s *ContactService) FindContactByID(id string) *model.ContactEntry {
	return s.contactsByID[id]
}

// Account 标识对应的账号，主队列调用
func (s *ContactService) Account(identifier string) (model.AccountEntry, bool) {
	entry, ok := s.accounts[s.Normalize(identifier)]
	return entry, ok
}

// Contacts 全部联系人，主队列调用
func (s *ContactService) Contacts() []*model.ContactEntry {
	out := make([]*model.ContactEntry, len(s.contacts))
	copy(out, s.contacts)
	return out
}

// Uninvited 没有活跃账号的联系人，主队列调用
func (s *ContactService) Uninvited() []*model.ContactEntry {
	out := make([]*model.ContactEntry, 0, len(s.uninvited))
	for _, c := range s.contacts {
		if s.uninvited[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// SendInvite 邀请联系人，成功后合并返回的账号映射。不能在主队列上调用。
func (s *ContactService) SendInvite(ctx context.Context, contactID, inviteToken string) error {
	v, err := s.queue.Call(func() (interface{}, error) {
		c := s.contactsByID[contactID]
		if c == nil {
			return nil, ErrContactNotFound
		}
		return c, nil
	})
	if err != nil {
		return err
	}
	contact := v.(*model.ContactEntry)
	identifiers := contact.SortedIdentifiers()
	if len(identifiers) == 0 {
		return ErrParamInvalid
	}

	res := s.client.Perform(ctx, backend.SendInvite(identifiers[0], contact.Name, inviteToken))
	if !res.Successful() {
		return fmt.Errorf("%w: invite %s: %v", ErrBackend, contactID, res.Err)
	}
	entries := accountEntriesFromResult(res)

	return s.queue.Sync(func() {
		s.invited[contactID] = true
		s.mergeAccounts([][]model.AccountEntry{entries})
		s.persistAccounts(ctx)
		log.InfoContext(ctx, "invite sent", "contact_id", contactID, "accounts", len(entries))
	})
}

// HandleAddressBookChanged 系统通讯录变化时重新导入，不请求权限
func (s *ContactService) HandleAddressBookChanged() {
	s.ImportContacts(false, nil)
}

// Reset 退出登录时清空索引与缓存
func (s *ContactService) Reset(ctx context.Context) {
	_ = s.queue.Do(func() {
		s.accounts = make(map[string]model.AccountEntry)
		s.refreshedAt = time.Time{}
		s.invited = make(map[string]bool)
		s.setContacts(nil)
	})
	go func() {
		if err := s.repo.Clear(ctx); err != nil {
			log.ErrorContext(ctx, "clear contact cache failed", "err", err)
		}
	}()
}
