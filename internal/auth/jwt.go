package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject     = "sub"
	claimType        = "typ"
	claimCallable    = "callable"
	claimKwargs      = "kwargs"
	relayTokenType   = "relay"
	commandTokenType = "command"

	// CommandTokenKey is the kwargs key carrying the command signature.
	CommandTokenKey = "token"
)

// ErrInvalidCommandToken is returned when a command invocation fails verification.
var ErrInvalidCommandToken = errors.New("invalid command token")

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// SubjectFromContext extracts the relay client name from JWT claims.
func SubjectFromContext(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	if claimString(claims, claimType) != relayTokenType {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid relay token")
	}
	if subject := claimString(claims, claimSubject); subject != "" {
		return subject, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "subject missing")
}

// GenerateToken creates a signed relay JWT for the named middleware client.
func GenerateToken(subject, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: subject,
		claimType:    relayTokenType,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// SignCommand binds a callable name and its kwargs into a signed token.
// The returned kwargs copy carries the token under CommandTokenKey.
func SignCommand(callable string, kwargs map[string]string, secret string, expiresIn time.Duration) (map[string]string, error) {
	if strings.TrimSpace(callable) == "" {
		return nil, fmt.Errorf("callable is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return nil, fmt.Errorf("jwt expires in must be positive")
	}
	args := stripToken(kwargs)
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		claimType:     commandTokenType,
		claimCallable: callable,
		claimKwargs:   toAnyMap(args),
		"iat":         now.Unix(),
		"exp":         now.Add(expiresIn).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return nil, err
	}
	args[CommandTokenKey] = signed
	return args, nil
}

// VerifyCommand checks that kwargs carry a valid token issued for callable and
// that no argument was added, removed or changed since signing.
func VerifyCommand(callable string, kwargs map[string]string, secret string) error {
	raw := strings.TrimSpace(kwargs[CommandTokenKey])
	if raw == "" {
		return fmt.Errorf("%w: missing", ErrInvalidCommandToken)
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommandToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claimString(claims, claimType) != commandTokenType {
		return fmt.Errorf("%w: wrong token type", ErrInvalidCommandToken)
	}
	if claimString(claims, claimCallable) != callable {
		return fmt.Errorf("%w: callable mismatch", ErrInvalidCommandToken)
	}
	signedArgs, _ := claims[claimKwargs].(map[string]any)
	args := stripToken(kwargs)
	if len(signedArgs) != len(args) {
		return fmt.Errorf("%w: kwargs mismatch", ErrInvalidCommandToken)
	}
	for k, v := range args {
		sv, ok := signedArgs[k].(string)
		if !ok || sv != v {
			return fmt.Errorf("%w: kwargs mismatch", ErrInvalidCommandToken)
		}
	}
	return nil
}

func stripToken(kwargs map[string]string) map[string]string {
	out := make(map[string]string, len(kwargs)+1)
	for k, v := range kwargs {
		if k == CommandTokenKey {
			continue
		}
		out[k] = v
	}
	return out
}

func toAnyMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
