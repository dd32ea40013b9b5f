package model

import (
	"maps"
	"time"
)

const (
	DefaultLanguage = "hu"
	DefaultCity     = "Budapest"
)

// UserProfile holds per-user preferences. It outlives every session reset.
type UserProfile struct {
	UserID      string         `json:"user_id"`
	Language    string         `json:"language"`
	DefaultCity string         `json:"default_city"`
	Preferences map[string]any `json:"preferences"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func NewUserProfile(userID string, now time.Time) UserProfile {
	return UserProfile{
		UserID:      userID,
		Language:    DefaultLanguage,
		DefaultCity: DefaultCity,
		Preferences: map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ProfilePatch is an incremental profile update. Nil fields are left untouched.
type ProfilePatch struct {
	Language    *string        `json:"language,omitempty" validate:"omitempty,oneof=hu en"`
	DefaultCity *string        `json:"default_city,omitempty" validate:"omitempty,min=1,max=80"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

func (p ProfilePatch) Empty() bool {
	return p.Language == nil && p.DefaultCity == nil && len(p.Preferences) == 0
}

// Apply returns a copy of the profile with the patch merged in.
// Preference keys are merged, not replaced wholesale.
func (u UserProfile) Apply(p ProfilePatch, now time.Time) UserProfile {
	out := u
	out.Preferences = maps.Clone(u.Preferences)
	if out.Preferences == nil {
		out.Preferences = map[string]any{}
	}
	if p.Language != nil {
		out.Language = *p.Language
	}
	if p.DefaultCity != nil {
		out.DefaultCity = *p.DefaultCity
	}
	maps.Copy(out.Preferences, p.Preferences)
	out.UpdatedAt = now
	return out
}

// View flattens the profile into the preference map shown to the model and the caller.
func (u UserProfile) View() map[string]any {
	view := make(map[string]any, len(u.Preferences)+2)
	maps.Copy(view, u.Preferences)
	view["language"] = u.Language
	view["default_city"] = u.DefaultCity
	return view
}
