package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"task-manager/logging"
	"task-manager/models"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer        = "task-manager"
	purposeSession     = "session"
	purposeReset       = "password_reset"
	TokenCookieName    = "token"
	AccessTokenTTL     = 24 * time.Hour
	PasswordResetTTL   = 72 * time.Hour
	maxRequestBodySize = 1 << 20
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid or expired token")
)

func RespondWithError(w http.ResponseWriter, status int, errorObject models.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorObject); err != nil {
		logging.Logger.Errorf("Event ID: RESPONSE_ENCODE_FAILED, Description: failed to encode error body: %v", err)
	}
}

func ResponseJSON(w http.ResponseWriter, data interface{}) {
	ResponseJSONStatus(w, http.StatusOK, data)
}

func ResponseJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Logger.Errorf("Event ID: RESPONSE_ENCODE_FAILED, Description: failed to encode response: %v", err)
	}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func ComparePasswords(hashedPassword string, password []byte) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), password) == nil
}

var phoneRegex = regexp.MustCompile(`^\+?\d{7,15}$`)

func IsPhoneNumber(input string) bool {
	return phoneRegex.MatchString(strings.TrimSpace(input))
}

// GenerateToken signs a session token for user.
func GenerateToken(user models.User, secret string, expiration time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("SECRET is not set")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":     tokenIssuer,
		"purpose": purposeSession,
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     now.Add(expiration).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(tokenString, secret string) (jwt.MapClaims, error) {
	if secret == "" {
		return nil, errors.New("SECRET is not set")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// SessionUserID validates a session token and returns its user id.
func SessionUserID(tokenString, secret string) (int, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return 0, err
	}
	if p, _ := claims["purpose"].(string); p != purposeSession {
		return 0, ErrTokenInvalid
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, errors.New("user_id not found in token")
	}
	return int(userIDFloat), nil
}

// passwordFingerprint ties a reset token to the password hash it was issued
// against, so the token dies once the password changes.
func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}

func GenerateResetToken(user models.User, secret string, expiration time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("SECRET is not set")
	}
	claims := jwt.MapClaims{
		"iss":     tokenIssuer,
		"purpose": purposeReset,
		"user_id": user.ID,
		"fp":      passwordFingerprint(user.Password),
		"exp":     time.Now().Add(expiration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ResetTokenUserID returns the user id carried by a password reset token.
// CheckResetToken must still be called against the stored user.
func ResetTokenUserID(tokenString, secret string) (int, jwt.MapClaims, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return 0, nil, err
	}
	if p, _ := claims["purpose"].(string); p != purposeReset {
		return 0, nil, ErrTokenInvalid
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, nil, ErrTokenInvalid
	}
	return int(userIDFloat), claims, nil
}

func CheckResetToken(claims jwt.MapClaims, user models.User) bool {
	fp, _ := claims["fp"].(string)
	return fp != "" && fp == passwordFingerprint(user.Password)
}

// TokenFromRequest reads a bearer token from the Authorization header,
// falling back to the token cookie.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

func StrToInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// LimitBody caps JSON request bodies.
func LimitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
}
