package users

import "time"

// User is a local account the gateway can bind a session to. Shared marks
// the common fallback accounts that stand in for members without a personal
// account.
type User struct {
	ID        string
	Login     string
	Email     string
	Name      string
	PersonUID string
	Shared    bool
}

// Profile is the identity the provider asserted about the visitor, distilled
// from trusted ID-token claims. A zero Birthdate means the provider did not
// assert one.
type Profile struct {
	PersonUID     string
	Email         string
	Name          string
	ChurchName    string
	HasMembership bool
	Birthdate     time.Time
}
