package models

// User is the authenticated identity as returned by /api/users/me.
type User struct {
	ID      int64        `json:"id"`
	Email   string       `json:"email"`
	Profile *UserProfile `json:"profile,omitempty"`
	Bio     *UserBio     `json:"bio,omitempty"`
}

type UserProfile struct {
	ID          int64  `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
	AboutMe     string `json:"aboutMe,omitempty"`
	LastSeen    string `json:"lastSeen,omitempty"`
	County      string `json:"county,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Age         *int   `json:"age,omitempty"`
}

type Interest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type UserBio struct {
	ID                  int64      `json:"id,omitempty"`
	Interests           []Interest `json:"interests,omitempty"`
	FavouriteCuisine    string     `json:"favouriteCuisine,omitempty"`
	FavouriteMusicGenre string     `json:"favouriteMusicGenre,omitempty"`
	PetPreference       string     `json:"petPreference,omitempty"`
	LookingFor          string     `json:"lookingFor,omitempty"`
	PriorityTraits      []string   `json:"priorityTraits,omitempty"`
}
