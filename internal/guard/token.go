package guard

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medrex/hms-access/pkg/rbac"
)

// Claims is the identity carried in access tokens issued by the identity service
type Claims struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	PrimaryRole string   `json:"primary_role,omitempty"`
	HospitalID  string   `json:"hospital_id"`
	Department  string   `json:"department,omitempty"`
	Clearance   string   `json:"clearance,omitempty"`

	// EmergencyAssertedBy names the operator who declared an emergency for
	// this session through the identity service's break-glass flow
	EmergencyAssertedBy string `json:"emergency_asserted_by,omitempty"`
	jwt.RegisteredClaims
}

// EmergencyOperator returns the operator who asserted an emergency for the
// token holder. A holder cannot assert an emergency for themselves.
func (c *Claims) EmergencyOperator() (string, bool) {
	if c.EmergencyAssertedBy == "" || c.EmergencyAssertedBy == c.UserID || c.EmergencyAssertedBy == c.Subject {
		return "", false
	}
	return c.EmergencyAssertedBy, true
}

// TokenValidator validates HS256 bearer tokens
type TokenValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenValidator creates a new token validator. Empty issuer or audience disables that check.
func NewTokenValidator(secret, issuer, audience string) *TokenValidator {
	return &TokenValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// ValidateToken parses the token and returns the caller's attributes
func (tv *TokenValidator) ValidateToken(tokenString string) (*rbac.UserAttributes, error) {
	user, _, err := tv.ValidateClaims(tokenString)
	return user, err
}

// ValidateClaims parses the token and returns the caller's attributes together with the raw claims
func (tv *TokenValidator) ValidateClaims(tokenString string) (*rbac.UserAttributes, *Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}
	if tv.audience != "" {
		opts = append(opts, jwt.WithAudience(tv.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.secret, nil
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, nil, fmt.Errorf("invalid token claims")
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, nil, fmt.Errorf("token has no subject")
	}

	roles := make([]rbac.Role, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		roles = append(roles, rbac.Role(r))
	}

	return &rbac.UserAttributes{
		ID:          userID,
		Roles:       roles,
		PrimaryRole: rbac.Role(claims.PrimaryRole),
		HospitalID:  claims.HospitalID,
		Department:  claims.Department,
		Clearance:   rbac.ClearanceLevel(claims.Clearance),
		Active:      true,
	}, claims, nil
}

// GenerateToken signs a token for user, valid for ttl
func (tv *TokenValidator) GenerateToken(user *rbac.UserAttributes, ttl time.Duration) (string, error) {
	return tv.generate(user, "", ttl)
}

// GenerateEmergencyToken signs a token carrying an emergency asserted by operatorID
func (tv *TokenValidator) GenerateEmergencyToken(user *rbac.UserAttributes, operatorID string, ttl time.Duration) (string, error) {
	return tv.generate(user, operatorID, ttl)
}

func (tv *TokenValidator) generate(user *rbac.UserAttributes, operatorID string, ttl time.Duration) (string, error) {
	now := time.Now()

	roles := make([]string, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = string(r)
	}

	claims := &Claims{
		UserID:      user.ID,
		Roles:       roles,
		PrimaryRole: string(user.PrimaryRole),
		HospitalID:  user.HospitalID,
		Department:  user.Department,
		Clearance:   string(user.Clearance),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tv.issuer,
			Subject:   user.ID,
		},
	}
	if tv.audience != "" {
		claims.Audience = jwt.ClaimStrings{tv.audience}
	}
	claims.EmergencyAssertedBy = operatorID

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tv.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
