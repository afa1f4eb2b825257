package appclient

// Session is the token pair issued by the backend at login. The access token
// is replaced wholesale on every successful refresh; the refresh token is
// replaced only when the server issues a new one.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id"`
}

// Identity describes one authentication provider linked to a user.
type Identity struct {
	ID           string `json:"id"`
	ProviderType string `json:"provider_type"`
}

// User is the identity returned by Login. A user may have several linked
// identities but holds exactly one active session in this client.
type User struct {
	// ID is the backend user id.
	ID string

	// Identities lists the authentication providers linked to this user.
	Identities []Identity

	// Profile carries the custom user data configured for the app, opaque to
	// the client.
	Profile map[string]any

	store *tokenStore
}

// Session returns the user's current token pair. ok is false after logout or
// an unrecoverable refresh failure.
func (u *User) Session() (Session, bool) {
	return u.store.get()
}

// AccessToken returns the current access token, or the empty string when the
// session is gone.
func (u *User) AccessToken() string {
	sess, ok := u.store.get()
	if !ok {
		return ""
	}
	return sess.AccessToken
}
