package entity

// Counterpart is the other participant of a conversation.
type Counterpart struct {
	Id       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role,omitempty"`
	// PriorityExpiresAt is the unix-milli expiry of the counterpart's
	// priority window. Zero means the counterpart never had one.
	PriorityExpiresAt int64 `json:"priority_expires_at,omitempty"`
}

// MessagePreview is the last-message snippet shown in the conversation list.
type MessagePreview struct {
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// Conversation represents a thread between the current user and one
// counterpart.
type Conversation struct {
	Id             string          `json:"id"`
	Counterpart    Counterpart     `json:"counterpart"`
	LastMessage    *MessagePreview `json:"last_message,omitempty"`
	LastActivityAt int64           `json:"last_activity_at"`
	UnreadCount    int64           `json:"unread_count"`
}

// Clone returns a deep copy so callers can hand conversations across the
// presentation boundary without aliasing store-owned state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	if c.LastMessage != nil {
		preview := *c.LastMessage
		cp.LastMessage = &preview
	}
	return &cp
}

// Pagination describes a page of a remote listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// HasNext reports whether another page exists after this one.
func (p *Pagination) HasNext() bool {
	if p.Limit <= 0 {
		return false
	}
	return int64(p.Page*p.Limit) < p.Total
}
