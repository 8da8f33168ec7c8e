package models

// Session identifies the caller of a controller operation. It is built by
// the auth middleware and passed explicitly.
type Session struct {
	UserID        string
	Authenticated bool
	Locale        string
}

func (s Session) Valid() bool {
	return s.Authenticated && s.UserID != ""
}
