package models

import "time"

// Role classifies what a user is allowed to do in the realtime layer.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleStreamer Role = "streamer"
)

// User is a verified identity. It is resolved once per connection at
// handshake time and never mutated afterwards.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      Role      `json:"role"`
	ShopName  string    `json:"shop_name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DisplayNameFor returns the name to surface for a user anywhere a name
// is shown. Streamers are presented by their shop name when they have
// one; everyone else by their personal name.
func DisplayNameFor(u *User) string {
	if u == nil {
		return ""
	}
	if u.Role == RoleStreamer && u.ShopName != "" {
		return u.ShopName
	}
	return u.Name
}
