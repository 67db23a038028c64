package finuraauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Identity is the stable user identifier issued by the session authority. The
// authority may encode it as a JSON string or number; both decode to the same
// Identity.
type Identity string

func (id *Identity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Identity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity must be a string or number: %w", err)
	}
	*id = Identity(n.String())
	return nil
}

// UserRecord is the user returned by the session authority and echoed to the
// client on successful authorization.
type UserRecord struct {
	ID             Identity `json:"id,omitempty"`
	UserID         Identity `json:"user_id,omitempty"`
	Username       string   `json:"username,omitempty"`
	Firstname      string   `json:"firstname,omitempty"`
	Lastname       string   `json:"lastname,omitempty"`
	Email          string   `json:"email,omitempty"`
	ProfilePicture string   `json:"profile_picture,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	IsActive       bool     `json:"is_active"`
	CreatedAt      string   `json:"created_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
}

// Identity returns the key used for all presence and activity state: id when
// present, otherwise user_id.
func (u UserRecord) Identity() string {
	if u.ID != "" {
		return string(u.ID)
	}
	return string(u.UserID)
}

// DisplayName returns the most human-friendly name available.
func (u UserRecord) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Firstname != "" || u.Lastname != "":
		return strings.TrimSpace(u.Firstname + " " + u.Lastname)
	default:
		return u.Identity()
	}
}

type meResponse struct {
	Success bool        `json:"success"`
	User    *UserRecord `json:"user,omitempty"`
}
