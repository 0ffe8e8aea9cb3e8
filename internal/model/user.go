package model

import "time"

// User is an account created on first GitHub sign-in. GitHubID is the stable
// external key; ID is ours and is what sessions and submissions refer to.
// Email is empty when the GitHub user hides every address.
type User struct {
	ID        string    `json:"id"`
	GitHubID  int64     `json:"githubId"`
	Login     string    `json:"login"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
