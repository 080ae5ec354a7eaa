package domain

import (
	"strconv"
	"time"
)

// User is the stable internal identity mapped 1:1 from a chat-platform
// account. Rows are created lazily on first interaction and never deleted.
type User struct {
	ID        int64     `json:"id"         db:"id"`
	TgUserID  int64     `json:"tg_user_id" db:"tg_user_id"`
	Username  *string   `json:"username"   db:"username"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DisplayName returns the username when present, otherwise the numeric
// chat id. Used in notifications and deal cards.
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	return "#" + strconv.FormatInt(u.TgUserID, 10)
}
