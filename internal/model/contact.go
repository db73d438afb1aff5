package model

import (
	"sort"
	"strings"
)

// LabeledValue 通讯录中的电话/邮箱及其标签
type LabeledValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DeviceContact 设备通讯录原始记录
type DeviceContact struct {
	ID           string         `json:"id"`
	Nickname     string         `json:"nickname"`
	GivenName    string         `json:"given_name"`
	FamilyName   string         `json:"family_name"`
	Organization string         `json:"organization"`
	Phones       []LabeledValue `json:"phones"`
	Emails       []LabeledValue `json:"emails"`
	Image        []byte         `json:"image,omitempty"`
}

// DisplayName 优先昵称，其次姓名，最后公司名
func (c DeviceContact) DisplayName() string {
	if nick := strings.TrimSpace(c.Nickname); nick != "" {
		return nick
	}
	if name := strings.TrimSpace(strings.TrimSpace(c.GivenName) + " " + strings.TrimSpace(c.FamilyName)); name != "" {
		return name
	}
	return strings.TrimSpace(c.Organization)
}

// ContactEntry 本地联系人，Identifiers 为规范化后的电话(E.164)/邮箱 -> 标签
type ContactEntry struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Identifiers map[string]string `json:"identifiers"`
	ImageData   []byte            `json:"image_data,omitempty"`
}

// SortedIdentifiers 按字典序返回全部标识
func (c *ContactEntry) SortedIdentifiers() []string {
	out := make([]string, 0, len(c.Identifiers))
	for id := range c.Identifiers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AccountEntry 标识到后端账号的映射
type AccountEntry struct {
	Identifier string `json:"identifier"`
	AccountID  int64  `json:"account_id"`
	Active     bool   `json:"active"`
}
