package appclient

import (
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
)

// Authentication provider identifiers, as they appear in the login URL.
const (
	ProviderAnonymous      = "anon-user"
	ProviderEmailPassword  = "local-userpass"
	ProviderAPIKey         = "api-key"
	ProviderCustomFunction = "custom-function"
	ProviderCustomJWT      = "custom-token"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Credentials selects a login mechanism and carries its inputs. Values are
// immutable once constructed and safe to share. Construct them with
// AnonymousCredentials, EmailPasswordCredentials, APIKeyCredentials,
// FunctionCredentials or JWTCredentials.
type Credentials interface {
	// Provider returns the backend provider identifier.
	Provider() string

	// payload encodes the provider-specific login body, validating inputs
	// first. Sealed: only this package's variants implement Credentials.
	payload() (map[string]any, error)
}

type anonymousCredentials struct{}

// AnonymousCredentials logs in as an ephemeral anonymous user.
func AnonymousCredentials() Credentials {
	return anonymousCredentials{}
}

func (anonymousCredentials) Provider() string { return ProviderAnonymous }

func (anonymousCredentials) payload() (map[string]any, error) {
	return map[string]any{}, nil
}

type emailPasswordCredentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=128"`
}

// EmailPasswordCredentials logs in a user registered with the email/password
// provider. Passwords must be between 6 and 128 characters.
func EmailPasswordCredentials(email, password string) Credentials {
	return emailPasswordCredentials{Email: email, Password: password}
}

func (emailPasswordCredentials) Provider() string { return ProviderEmailPassword }

func (c emailPasswordCredentials) payload() (map[string]any, error) {
	if err := validate.Struct(c); err != nil {
		return nil, &InvalidCredentialsError{Provider: c.Provider(), Reason: err.Error()}
	}
	return map[string]any{
		"username": c.Email,
		"password": c.Password,
	}, nil
}

type apiKeyCredentials struct {
	Key string `validate:"required"`
}

// APIKeyCredentials logs in with a server or user API key.
func APIKeyCredentials(key string) Credentials {
	return apiKeyCredentials{Key: key}
}

func (apiKeyCredentials) Provider() string { return ProviderAPIKey }

func (c apiKeyCredentials) payload() (map[string]any, error) {
	if err := validate.Struct(c); err != nil {
		return nil, &InvalidCredentialsError{Provider: c.Provider(), Reason: err.Error()}
	}
	return map[string]any{"key": c.Key}, nil
}

type functionCredentials struct {
	Payload bson.M
}

// FunctionCredentials logs in through a custom authentication function. The
// payload document is passed to the function unchanged.
func FunctionCredentials(payload bson.M) Credentials {
	return functionCredentials{Payload: payload}
}

func (functionCredentials) Provider() string { return ProviderCustomFunction }

func (c functionCredentials) payload() (map[string]any, error) {
	if c.Payload == nil {
		return nil, &InvalidCredentialsError{Provider: c.Provider(), Reason: "payload must not be nil"}
	}
	return map[string]any(c.Payload), nil
}

type jwtCredentials struct {
	Token string `validate:"required"`
}

// JWTCredentials logs in with an externally issued JWT accepted by the
// app's custom JWT provider.
func JWTCredentials(token string) Credentials {
	return jwtCredentials{Token: token}
}

func (jwtCredentials) Provider() string { return ProviderCustomJWT }

func (c jwtCredentials) payload() (map[string]any, error) {
	if err := validate.Struct(c); err != nil {
		return nil, &InvalidCredentialsError{Provider: c.Provider(), Reason: err.Error()}
	}
	return map[string]any{"token": c.Token}, nil
}
