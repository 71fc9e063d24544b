package auth

import "net/http"

// AuthError codes.
const (
	CodeInvalidHeader = "invalid_header"
	CodeTokenExpired  = "token_expired"
	CodeInvalidClaims = "invalid_claims"
	CodeNoInfo        = "no_info"
)

// AuthError describes a token verification failure. It carries its own HTTP
// status so handlers can write it without interpretation.
type AuthError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Status      int    `json:"-"`
}

func (e *AuthError) Error() string   { return e.Code + ": " + e.Description }
func (e *AuthError) HTTPStatus() int { return e.Status }

func authError(code, description string) *AuthError {
	return &AuthError{Code: code, Description: description, Status: http.StatusUnauthorized}
}
