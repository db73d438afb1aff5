package handler

import (
	"Roger/internal/api/dto"
	"Roger/internal/model"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/response"
	"Roger/internal/service"
	log "log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"
)

// contactWait 导入与批量查询的最长等待时间
const contactWait = 2 * time.Minute

type ContactHandler struct {
	queue    *dispatch.Queue
	contacts *service.ContactService
}

func NewContactHandler(queue *dispatch.Queue, contacts *service.ContactService) *ContactHandler {
	return &ContactHandler{queue: queue, contacts: contacts}
}

// toContactDTO 主队列调用
func (s *ContactHandler) toContactDTO(c *model.ContactEntry) dto.ContactDTO {
	var out dto.ContactDTO
	if err := copier.Copy(&out, c); err != nil {
		log.Warn("copy contact failed", "contact_id", c.ID, "err", err)
	}
	out.HasImage = len(c.ImageData) > 0
	for _, id := range c.SortedIdentifiers() {
		if entry, ok := s.contacts.Account(id); ok && entry.AccountID != 0 {
			out.AccountID = entry.AccountID
			out.Active = out.Active || entry.Active
		}
	}
	return out
}

// List uninvited=1 时只返回没有活跃账号的联系人
func (s *ContactHandler) List(c *gin.Context) {
	uninvited := c.Query("uninvited") == "1"
	list, err := onMain(s.queue, func() ([]dto.ContactDTO, error) {
		entries := s.contacts.Contacts()
		if uninvited {
			entries = s.contacts.Uninvited()
		}
		out := make([]dto.ContactDTO, 0, len(entries))
		for _, e := range entries {
			out = append(out, s.toContactDTO(e))
		}
		return out, nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

func (s *ContactHandler) Import(c *gin.Context) {
	var req dto.ImportContactsDTO
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, err)
		return
	}
	done := make(chan bool, 1)
	s.contacts.ImportContacts(req.RequestAccess, func(ok bool) { done <- ok })

	select {
	case ok := <-done:
		if !ok {
			response.Error(c, service.ErrPermissionDenied)
			return
		}
		response.Success(c, gin.H{"imported": true})
	case <-c.Request.Context().Done():
		response.Error(c, c.Request.Context().Err())
	case <-time.After(contactWait):
		response.Error(c, service.UnExpectedError)
	}
}

// Lookup 查询标识对应的账号，全部批次完成后返回
func (s *ContactHandler) Lookup(c *gin.Context) {
	var req dto.LookupDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	done := make(chan bool, 1)
	s.contacts.UpdateAccountActiveState(ctx, req.Identifiers, func(discovered bool) { done <- discovered })

	var discovered bool
	select {
	case discovered = <-done:
	case <-ctx.Done():
		response.Error(c, ctx.Err())
		return
	case <-time.After(contactWait):
		response.Error(c, service.UnExpectedError)
		return
	}

	accounts, err := onMain(s.queue, func() (map[string]model.AccountEntry, error) {
		out := make(map[string]model.AccountEntry, len(req.Identifiers))
		for _, id := range req.Identifiers {
			if entry, ok := s.contacts.Account(id); ok {
				out[id] = entry
			}
		}
		return out, nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"discovered": discovered, "accounts": accounts})
}

func (s *ContactHandler) ByAccount(c *gin.Context) {
	accountID, err := paramInt64(c, "account_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	contact, err := onMain(s.queue, func() (dto.ContactDTO, error) {
		entry := s.contacts.FindContactByAccountID(accountID)
		if entry == nil {
			return dto.ContactDTO{}, service.ErrContactNotFound
		}
		return s.toContactDTO(entry), nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contact)
}

func (s *ContactHandler) Invite(c *gin.Context) {
	var req dto.InviteDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	if err := s.contacts.SendInvite(c.Request.Context(), c.Param("id"), req.InviteToken); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// AddressBookChanged 系统通讯录变化通知
func (s *ContactHandler) AddressBookChanged(c *gin.Context) {
	s.contacts.HandleAddressBookChanged()
	response.Success(c, nil)
}
