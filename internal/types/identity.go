package types

// Identity is the authenticated caller attached to every request. Services trust it
// without re-verifying credentials.
type Identity struct {
	UserID             uint
	UserUUID           string
	CountryOfResidence string
}
