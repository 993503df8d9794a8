package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"task-manager/models"
)

const testSecret = "test-secret"

func TestGenerateToken_RoundTrip(t *testing.T) {
	user := models.User{ID: 42, Role: models.RoleTeacher}
	token, err := GenerateToken(user, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id, err := SessionUserID(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 42 {
		t.Fatalf("user id = %d, want 42", id)
	}
	if _, err := SessionUserID(token, "other-secret"); err == nil {
		t.Fatal("token accepted with the wrong secret")
	}
}

func TestGenerateToken_Expired(t *testing.T) {
	token, err := GenerateToken(models.User{ID: 1}, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := SessionUserID(token, testSecret); err != ErrTokenExpired {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestResetToken_NotUsableAsSession(t *testing.T) {
	user := models.User{ID: 7, Password: "$2a$10$hash"}
	token, err := GenerateResetToken(user, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := SessionUserID(token, testSecret); err == nil {
		t.Fatal("reset token accepted as a session token")
	}
	id, claims, err := ResetTokenUserID(token, testSecret)
	if err != nil || id != 7 {
		t.Fatalf("reset parse = %d, %v", id, err)
	}
	if !CheckResetToken(claims, user) {
		t.Fatal("fingerprint mismatch for unchanged password")
	}
	user.Password = "$2a$10$changed"
	if CheckResetToken(claims, user) {
		t.Fatal("reset token still valid after password change")
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	if got := TokenFromRequest(r); got != "abc" {
		t.Fatalf("header token = %q", got)
	}
	r = httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "fromcookie"})
	if got := TokenFromRequest(r); got != "fromcookie" {
		t.Fatalf("cookie token = %q", got)
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("password1", "ComplexPass123!", "testteacher"); err != nil {
		t.Fatalf("strong password rejected: %v", err)
	}
	fields := FieldErrors(ValidatePassword("password1", "1234"))
	msg := fields["password1"]
	if !strings.Contains(msg, "too short") || !strings.Contains(msg, "entirely numeric") {
		t.Fatalf("unexpected messages: %q", msg)
	}
	fields = FieldErrors(ValidatePassword("password1", "alice-secret-99", "alice"))
	if !strings.Contains(fields["password1"], "too similar") {
		t.Fatalf("similarity not detected: %v", fields)
	}
	fields = FieldErrors(ValidatePassword("password1", "Password"))
	if !strings.Contains(fields["password1"], "too common") {
		t.Fatalf("common password not detected: %v", fields)
	}
}

func TestValidate_CollectsEveryField(t *testing.T) {
	type form struct {
		Name  string `json:"name" validate:"required,max=3"`
		Email string `json:"email" validate:"required,email"`
		Phone string `json:"phone" validate:"omitempty,phone"`
	}
	fields := FieldErrors(Validate(form{Name: "toolong", Email: "nope", Phone: "12"}))
	for _, f := range []string{"name", "email", "phone"} {
		if fields[f] == "" {
			t.Fatalf("missing error for %s: %v", f, fields)
		}
	}
	if err := Validate(form{Name: "ab", Email: "a@b.co"}); err != nil {
		t.Fatalf("valid form rejected: %v", err)
	}
}
