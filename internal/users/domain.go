package users

import "time"

// Profile is the user-facing view of an account. The password hash and
// security flags never leave the auth module.
type Profile struct {
	Email            string
	Username         string
	Bio              string
	ProfilePicture   string
	AvatarIDs        []string
	Verified         bool
	CompletedProfile bool
	CreatedAt        time.Time
}

// Profile completion steps.
const (
	StepIdentity = 1 // username + bio
	StepPicture  = 2 // profile picture
	StepAvatars  = 3 // up to three avatars
	StepComplete = 4 // mark profile complete
)

// MaxAvatars bounds the avatar selection.
const MaxAvatars = 3
