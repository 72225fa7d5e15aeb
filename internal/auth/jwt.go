package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

const (
	// TokenIssuer and TokenAudience are stamped on every instructor token and required on parse.
	TokenIssuer   = "lecturelink"
	TokenAudience = "lecturelink-instructors"

	clockSkew = 30 * time.Second
)

// Claims carries the instructor behind a token. The subject mirrors InstructorID.
type Claims struct {
	InstructorID uuid.UUID `json:"instructor_id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	jwt.RegisteredClaims
}

// JWTService signs and checks HS256 instructor tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewJWTService creates a JWT service. Tokens live expireHours; a negative value issues tokens
// that are already expired.
func NewJWTService(secret string, expireHours int) *JWTService {
	s := &JWTService{
		secret: []byte(secret),
		ttl:    time.Duration(expireHours) * time.Hour,
		now:    time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// Generate signs a token for the instructor.
func (s *JWTService) Generate(instructorID uuid.UUID, username, role string) (string, error) {
	now := s.now()
	claims := Claims{
		InstructorID: instructorID,
		Username:     username,
		Role:         role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   instructorID.String(),
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns its claims. Every failure wraps ErrInvalidToken.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.InstructorID == uuid.Nil || claims.Subject != claims.InstructorID.String() {
		return nil, fmt.Errorf("%w: subject does not match instructor", ErrInvalidToken)
	}
	return claims, nil
}
