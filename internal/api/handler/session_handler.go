package handler

import (
	"Roger/internal/api/dto"
	"Roger/internal/model"
	"Roger/internal/pkg/response"
	"Roger/internal/service"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	session *service.SessionService
}

func NewSessionHandler(session *service.SessionService) *SessionHandler {
	return &SessionHandler{session: session}
}

func (s *SessionHandler) Get(c *gin.Context) {
	current := s.session.Current()
	if current == nil {
		response.Error(c, service.ErrNotLoggedIn)
		return
	}
	response.Success(c, dto.SessionDTO{
		AccountID:   current.AccountID,
		DisplayName: current.DisplayName,
		Region:      current.Region,
		ExpiresAt:   current.ExpiresAt,
	})
}

func (s *SessionHandler) SignIn(c *gin.Context) {
	var req dto.SignInDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	session := &model.Session{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		DisplayName:  req.DisplayName,
		Region:       req.Region,
	}
	if err := s.session.SignIn(c.Request.Context(), session); err != nil {
		response.Error(c, err)
		return
	}
	s.Get(c)
}

func (s *SessionHandler) SignOut(c *gin.Context) {
	s.session.Clear(c.Request.Context())
	response.Success(c, nil)
}
