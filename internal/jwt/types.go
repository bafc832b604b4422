package jwt

type Role int

const (
	RoleOperator Role = iota
)

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    int64
	ExpiresAt int64
}
