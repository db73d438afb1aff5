package service

import (
	"Roger/internal/model"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

// ContactSource 设备通讯录
type ContactSource interface {
	// Authorized 是否已有读取权限
	Authorized() bool
	// RequestAccess 请求权限，拒绝时返回 false
	RequestAccess(ctx context.Context) bool
	// Contacts 枚举全部联系人
	Contacts(ctx context.Context) ([]model.DeviceContact, error)
}

// FileContactSource 从导出的 JSON 通讯录读取，文件可读即视为已授权
type FileContactSource struct {
	path string

	mu      sync.Mutex
	granted bool
}

func NewFileContactSource(path string) *FileContactSource {
	return &FileContactSource{path: path}
}

func (s *FileContactSource) readable() bool {
	if s.path == "" {
		return false
	}
	f, err := os.Open(s.path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func (s *FileContactSource) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted && s.readable()
}

func (s *FileContactSource) RequestAccess(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = s.readable()
	return s.granted
}

func (s *FileContactSource) Contacts(_ context.Context) ([]model.DeviceContact, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read address book: %w", err)
	}
	var contacts []model.DeviceContact
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("decode address book: %w", err)
	}
	return contacts, nil
}
