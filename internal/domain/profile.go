package domain

// Profile is what the account tables expose to the messaging core
type Profile struct {
	Principal Principal
	Name      string
	Username  string
	AvatarURL string
	PushToken string
}

// ProfileSnapshot is the public part of a profile embedded in responses
type ProfileSnapshot struct {
	ID        int64         `json:"id"`
	Type      PrincipalKind `json:"type"`
	Name      string        `json:"name"`
	Username  string        `json:"username"`
	AvatarURL string        `json:"avatar_url"`
}

// Snapshot strips private fields such as the push token
func (p *Profile) Snapshot() *ProfileSnapshot {
	if p == nil {
		return nil
	}
	return &ProfileSnapshot{
		ID:        p.Principal.ID,
		Type:      p.Principal.Kind,
		Name:      p.Name,
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
	}
}
