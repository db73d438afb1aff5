package dto

type ContactDTO struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Identifiers map[string]string `json:"identifiers"`
	HasImage    bool              `json:"has_image"`
	AccountID   int64             `json:"account_id,omitempty"`
	Active      bool              `json:"active"`
}

type ImportContactsDTO struct {
	RequestAccess bool `json:"request_access"`
}

type InviteDTO struct {
	InviteToken string `json:"invite_token" binding:"required"`
}

// LookupDTO 查询标识对应的账号，完成后一次性返回
type LookupDTO struct {
	Identifiers []string `json:"identifiers" binding:"required,min=1"`
}
