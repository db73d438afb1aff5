package service

import (
	"Roger/internal/model"
	"Roger/internal/pkg/backend"
	"Roger/internal/pkg/event"
	"Roger/internal/pkg/security"
	"Roger/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"
)

// SessionService 当前登录会话。任意请求返回 401 时清空。
type SessionService struct {
	repo repository.SessionRepo

	mu      sync.RWMutex
	session *model.Session

	// SessionChanged 登录、退出时触发，参数为旧会话（可能为 nil）
	SessionChanged event.Event[*model.Session]
}

func NewSessionService(repo repository.SessionRepo) *SessionService {
	return &SessionService{repo: repo}
}

// Load 从本地恢复会话
func (s *SessionService) Load(ctx context.Context) error {
	session, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !session.Valid() {
		return nil
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	log.InfoContext(ctx, "session restored", "account_id", session.AccountID)
	return nil
}

// SignIn 保存新会话，过期时间与账号从令牌中补全
func (s *SessionService) SignIn(ctx context.Context, session *model.Session) error {
	if session == nil || session.AccessToken == "" {
		return ErrParamInvalid
	}
	claims, err := security.ParseAccessToken(session.AccessToken)
	if err != nil {
		log.WarnContext(ctx, "access token unreadable", "err", err)
	} else {
		if session.AccountID == 0 {
			session.AccountID = claims.AccountID
		}
		if session.Region == "" {
			session.Region = claims.Region
		}
		if claims.ExpiresAt != nil {
			session.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if !session.Valid() {
		return ErrParamInvalid
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	s.mu.Lock()
	old := s.session
	s.session = session
	s.mu.Unlock()

	log.InfoContext(ctx, "signed in", "account_id", session.AccountID)
	s.SessionChanged.Emit(old)
	return nil
}

// Clear 退出登录。重复调用无副作用。
func (s *SessionService) Clear(ctx context.Context) {
	s.mu.Lock()
	old := s.session
	s.session = nil
	s.mu.Unlock()
	if old == nil {
		return
	}
	if err := s.repo.Clear(ctx); err != nil {
		log.ErrorContext(ctx, "clear session failed", "err", err)
	}
	log.InfoContext(ctx, "session cleared", "account_id", old.AccountID)
	s.SessionChanged.Emit(old)
}

// BindClient 注册 401 处理，与触发的请求类型无关
func (s *SessionService) BindClient(client *backend.Client) (remove func()) {
	return client.Unauthorized.AddListener(func(in backend.Intent) {
		s.Clear(context.Background())
	})
}

// Current 当前会话副本，未登录返回 nil
func (s *SessionService) Current() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

func (s *SessionService) AccountID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return 0
	}
	return s.session.AccountID
}

// Token 实现 backend.TokenSource
func (s *SessionService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// Region 运营商推断的地区代码，未知时为空
func (s *SessionService) Region() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.Region
}

// Expired 令牌是否已过期，没有过期时间视为未过期
func (s *SessionService) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return true
	}
	return !s.session.ExpiresAt.IsZero() && now.After(s.session.ExpiresAt)
}
