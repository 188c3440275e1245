package domain

import "time"

// User represents an enrolled identity. VoicePhrase holds the transcript
// captured at enrollment time and is the reference for login comparisons.
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  []byte
	VoicePhrase   string
	AudioFilePath string
	CreatedAt     time.Time
}

// PublicUser is the projection of User safe to return to clients.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Public returns the client-facing projection of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
