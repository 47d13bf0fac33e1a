package model

import "time"

// Role controls what a user may do beyond owning their own scripts.
// Admins may edit or delete any script; verified is a display-only badge.
type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleVerified Role = "verified"
)

// User represents a registered account.
//
// Identity comes from the Roblox identity provider, so the stable external
// identifier is the numeric Roblox user ID. We still generate our own internal
// string ID (xid) for consistency with Script and to avoid tying primary keys
// to a third party's numbering scheme. The UNIQUE constraint on
// roblox_user_id ensures one Roblox account maps to exactly one app account.
//
// Username, AvatarURL and LastActive are refreshed on every login.
// UploadCount increments exactly once per successful script upload.
type User struct {
	ID           string    `json:"id"           db:"id"`
	RobloxUserID int64     `json:"robloxUserId" db:"roblox_user_id"`
	Username     string    `json:"username"     db:"username"`
	AvatarURL    string    `json:"avatarUrl"    db:"avatar_url"`
	Role         Role      `json:"role"         db:"role"`
	UploadCount  int64     `json:"uploadCount"  db:"upload_count"`
	LastActive   time.Time `json:"lastActive"   db:"last_active"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
