package callback

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/finledger/auth-callback/internal/backend"
)

// SessionUser is the normalized projection of the backend profile.
type SessionUser struct {
	// ID keeps the backend's representation, numeric or string.
	ID         any    `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	IsVerified bool   `json:"is_verified"`
	GoogleID   string `json:"google_id,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

type profilePayload struct {
	ID             any    `mapstructure:"id"`
	Email          string `mapstructure:"email"`
	Name           string `mapstructure:"name"`
	FirstName      string `mapstructure:"first_name"`
	LastName       string `mapstructure:"last_name"`
	IsVerified     bool   `mapstructure:"is_verified"`
	GoogleID       string `mapstructure:"google_id"`
	ProfilePicture string `mapstructure:"profile_picture"`
}

func userFromProfile(profile backend.Profile) (SessionUser, error) {
	var p profilePayload

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return SessionUser{}, fmt.Errorf("creating profile decoder: %w", err)
	}

	if err := decoder.Decode(map[string]any(profile)); err != nil {
		return SessionUser{}, fmt.Errorf("decoding profile: %w", err)
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}

	return SessionUser{
		ID:         p.ID,
		Email:      p.Email,
		Name:       name,
		IsVerified: p.IsVerified,
		GoogleID:   p.GoogleID,
		Avatar:     p.ProfilePicture,
	}, nil
}

// identified reports whether the profile named a user at all.
func (u SessionUser) identified() bool {
	if u.Email != "" {
		return true
	}

	switch id := u.ID.(type) {
	case nil:
		return false
	case string:
		return id != ""
	default:
		return true
	}
}
