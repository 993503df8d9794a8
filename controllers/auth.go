package controllers

import (
	"database/sql"
	"net/http"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"

	"task-manager/logging"
	"task-manager/models"
	"task-manager/notify"
	"task-manager/otp"
	"task-manager/ratelimit"
	"task-manager/sessions"
	"task-manager/store"
	"task-manager/utils"
)

type AuthController struct {
	*App
}

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

type registrationForm struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
	FirstName string `json:"first_name" validate:"required,max=30"`
	LastName  string `json:"last_name" validate:"required,max=30"`
	Role      string `json:"role" validate:"required,oneof=Teacher Student"`
	Password1 string `json:"password1" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
}

// clean checks the form the way the sign-up page does. invalid collects every
// field problem; err is a lookup failure.
func (f *registrationForm) clean(r *http.Request, db *sql.DB) (invalid error, err error) {
	var result *multierror.Error
	if err := utils.Validate(f); err != nil {
		result = multierror.Append(result, err)
	}
	if f.Username != "" && !usernamePattern.MatchString(f.Username) {
		result = multierror.Append(result, utils.FieldError{Field: "username",
			Message: "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."})
	}
	if f.Username != "" {
		taken, err := store.UsernameTaken(r.Context(), db, f.Username)
		if err != nil {
			return nil, err
		}
		if taken {
			result = multierror.Append(result, utils.FieldError{Field: "username", Message: "A user with that username already exists."})
		}
	}
	if f.Email != "" {
		taken, err := store.EmailTaken(r.Context(), db, f.Email)
		if err != nil {
			return nil, err
		}
		if taken {
			result = multierror.Append(result, utils.FieldError{Field: "email", Message: "This email address is already in use."})
		}
	}
	if f.Password1 != "" && f.Password2 != "" {
		if f.Password1 != f.Password2 {
			result = multierror.Append(result, utils.FieldError{Field: "password2", Message: "Passwords do not match."})
		} else if err := utils.ValidatePassword("password2", f.Password2, f.Username, f.FirstName, f.LastName, f.Email); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil(), nil
}

func (c AuthController) Register(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		form := registrationForm{
			Username:  strings.TrimSpace(values.Get("username")),
			Email:     strings.TrimSpace(values.Get("email")),
			Phone:     strings.TrimSpace(values.Get("phone")),
			FirstName: strings.TrimSpace(values.Get("first_name")),
			LastName:  strings.TrimSpace(values.Get("last_name")),
			Role:      values.Get("role"),
			Password1: values.Get("password1"),
			Password2: values.Get("password2"),
		}
		invalid, err := form.clean(r, db)
		if err != nil {
			serverError(w, "REGISTER_LOOKUP_FAILED", err)
			return
		}
		if invalid != nil {
			formError(w, "Please correct the errors below.", invalid)
			return
		}

		hash, err := utils.HashPassword(form.Password1)
		if err != nil {
			serverError(w, "PASSWORD_HASH_FAILED", err)
			return
		}

		if c.Config.SkipRegistrationOTP {
			user := models.User{Username: form.Username, Email: form.Email, Phone: form.Phone,
				FirstName: form.FirstName, LastName: form.LastName, Role: form.Role, Password: hash, IsActive: true}
			if err := c.createAccount(r, db, &user); err != nil {
				serverError(w, "REGISTER_CREATE_FAILED", err)
				return
			}
			utils.ResponseJSONStatus(w, http.StatusCreated, map[string]interface{}{
				"success": true,
				"user_id": user.ID,
				"message": "Registration complete. You can now log in.",
			})
			return
		}

		code, err := otp.Generate(otp.Length)
		if err != nil {
			serverError(w, "OTP_GENERATE_FAILED", err)
			return
		}
		now := c.now()
		regID, err := c.Sessions.CreateRegistration(sessions.Registration{
			Username:     form.Username,
			Email:        form.Email,
			Phone:        form.Phone,
			FirstName:    form.FirstName,
			LastName:     form.LastName,
			Role:         form.Role,
			PasswordHash: hash,
			OTP:          code,
			SentAt:       now,
			CreatedAt:    now,
		})
		if err != nil {
			serverError(w, "REGISTRATION_SESSION_FAILED", err)
			return
		}
		if err := c.Notifier.SendOTP(r.Context(), notify.PurposeRegistration, form.Email, form.Phone, code); err != nil {
			c.Sessions.DeleteRegistration(regID)
			utils.RespondWithError(w, http.StatusInternalServerError, models.Error{
				Message: "Failed to send OTP email. Check email settings.",
				Code:    "send_failed",
			})
			return
		}

		logging.Logger.Infof("Event ID: REGISTRATION_PENDING, Description: OTP sent for new %s %s", form.Role, form.Username)
		utils.ResponseJSON(w, map[string]interface{}{
			"success":         true,
			"registration_id": regID,
			"message":         "OTP sent to your email. Please enter OTP to complete registration.",
		})
	}
}

// createAccount inserts a registered user and puts them in their role group.
func (c AuthController) createAccount(r *http.Request, db *sql.DB, user *models.User) error {
	return store.WithTx(r.Context(), db, func(tx *sql.Tx) error {
		if err := store.InsertUser(r.Context(), tx, user); err != nil {
			return err
		}
		return store.SyncUserRoleGroup(r.Context(), tx, user.ID, user.Role)
	})
}

func (c AuthController) VerifyRegistrationOTP(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		regID := values.Get("registration_id")
		reg, err := c.Sessions.Registration(regID, c.now())
		if regID == "" || err == sessions.ErrNotFound {
			badRequest(w, "no_session", "No pending registration found. Please fill the form again.")
			return
		}
		if err != nil {
			serverError(w, "REGISTRATION_SESSION_FAILED", err)
			return
		}

		given := strings.TrimSpace(values.Get("otp"))
		if given == "" {
			badRequest(w, "missing_fields", "Please enter the OTP sent to your email.")
			return
		}

		now := c.now()
		if reg.OTP == "" || otp.Expired(reg.SentAt, now) {
			reg.OTP = ""
			reg.Attempts = 0
			c.Sessions.SaveRegistration(regID, reg)
			badRequest(w, "otp_expired", "OTP expired. Please request a new OTP.")
			return
		}
		if reg.Attempts >= otp.MaxAttempts {
			c.Sessions.DeleteRegistration(regID)
			badRequest(w, "too_many_attempts", "Too many incorrect attempts. Please register again.")
			return
		}
		if !otp.Verify(reg.OTP, reg.SentAt, given, now) {
			reg.Attempts++
			c.Sessions.SaveRegistration(regID, reg)
			utils.ResponseJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
				"message":       "Incorrect OTP.",
				"error":         "invalid_otp",
				"attempts_left": otp.MaxAttempts - reg.Attempts,
			})
			return
		}

		user := models.User{Username: reg.Username, Email: reg.Email, Phone: reg.Phone, FirstName: reg.FirstName,
			LastName: reg.LastName, Role: reg.Role, Password: reg.PasswordHash, IsActive: true}
		if err := c.createAccount(r, db, &user); err != nil {
			if err == store.ErrDuplicate {
				c.Sessions.DeleteRegistration(regID)
				badRequest(w, "duplicate_user", "Failed to create account. Please try again.")
				return
			}
			serverError(w, "REGISTER_CREATE_FAILED", err)
			return
		}
		c.Sessions.DeleteRegistration(regID)

		logging.Logger.Infof("Event ID: USER_REGISTERED, Description: user %d (%s) registered as %s", user.ID, user.Username, user.Role)
		utils.ResponseJSONStatus(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"user_id": user.ID,
			"message": "Registration complete. You can now log in.",
		})
	}
}

func dashboardFor(u models.User) string {
	switch u.Role {
	case models.RoleAdmin:
		return "/admin_dashboard"
	case models.RoleTeacher:
		return "/teacher_dashboard"
	}
	return "/student_dashboard"
}

func (c AuthController) Login(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		username := strings.TrimSpace(values.Get("username"))
		password := values.Get("password")
		role := values.Get("role")
		if username == "" || password == "" {
			badRequest(w, "missing_fields", "Username and password are required.")
			return
		}

		user, err := store.GetUserByUsername(r.Context(), db, username)
		if err != nil && err != store.ErrNotFound {
			serverError(w, "LOGIN_LOOKUP_FAILED", err)
			return
		}
		if err == store.ErrNotFound || !user.IsActive || !utils.ComparePasswords(user.Password, []byte(password)) {
			logging.Logger.Warnf("Event ID: LOGIN_FAILED, Description: bad credentials for %q", username)
			utils.RespondWithError(w, http.StatusUnauthorized, models.Error{Message: "Invalid username or password.", Code: "invalid_credentials"})
			return
		}
		if role != "" && user.Role != role {
			badRequest(w, "role_mismatch", "Role does not match.")
			return
		}

		code, err := otp.Generate(otp.Length)
		if err != nil {
			serverError(w, "OTP_GENERATE_FAILED", err)
			return
		}
		now := c.now()
		if err := store.SetUserOTP(r.Context(), db, user.ID, code, now); err != nil {
			serverError(w, "OTP_STORE_FAILED", err)
			return
		}
		if err := c.Notifier.SendOTP(r.Context(), notify.PurposeLogin, user.Email, user.Phone, code); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, models.Error{
				Message: "Failed to send OTP email. Please try again later.",
				Code:    "send_failed",
			})
			return
		}
		challengeID, err := c.Sessions.CreateChallenge(sessions.Challenge{UserID: user.ID, SentAt: now, CreatedAt: now})
		if err != nil {
			serverError(w, "CHALLENGE_CREATE_FAILED", err)
			return
		}

		utils.ResponseJSON(w, map[string]interface{}{
			"success":      true,
			"challenge_id": challengeID,
			"message":      "OTP sent to your email.",
		})
	}
}

func (c AuthController) VerifyOTP(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		challengeID := values.Get("challenge_id")
		if challengeID != "" && !c.allowChallenge(r, "verify_otp", challengeID, ratelimit.VerifyOTPRule) {
			ratelimit.Reject(w, ratelimit.VerifyOTPRule)
			return
		}
		challenge, err := c.Sessions.Challenge(challengeID, c.now())
		if challengeID == "" || err == sessions.ErrNotFound {
			badRequest(w, "no_session", "Session expired. Please login again.")
			return
		}
		if err != nil {
			serverError(w, "CHALLENGE_READ_FAILED", err)
			return
		}
		user, err := store.GetUserByID(r.Context(), db, challenge.UserID)
		if err == store.ErrNotFound {
			c.Sessions.DeleteChallenge(challengeID)
			badRequest(w, "no_session", "User not found. Please login again.")
			return
		}
		if err != nil {
			serverError(w, "OTP_USER_LOOKUP_FAILED", err)
			return
		}

		now := c.now()
		if challenge.Attempts >= otp.MaxAttempts {
			c.dropChallenge(r, db, challengeID, user.ID)
			badRequest(w, "too_many_attempts", "Too many incorrect attempts. Please login again.")
			return
		}
		if !user.VerifyOTP(strings.TrimSpace(values.Get("otp")), now) {
			challenge.Attempts++
			if challenge.Attempts >= otp.MaxAttempts {
				logging.Logger.Warnf("Event ID: OTP_ATTEMPTS_EXHAUSTED, Description: user %d", user.ID)
				c.dropChallenge(r, db, challengeID, user.ID)
				badRequest(w, "too_many_attempts", "Too many incorrect attempts. Please login again.")
				return
			}
			if err := c.Sessions.SaveChallenge(challengeID, challenge); err != nil {
				serverError(w, "CHALLENGE_SAVE_FAILED", err)
				return
			}
			utils.ResponseJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
				"message":       "Invalid or expired OTP.",
				"error":         "invalid_otp",
				"attempts_left": otp.MaxAttempts - challenge.Attempts,
			})
			return
		}

		if err := store.ClearUserOTP(r.Context(), db, user.ID); err != nil {
			serverError(w, "OTP_CLEAR_FAILED", err)
			return
		}
		if err := store.TouchLastLogin(r.Context(), db, user.ID, now); err != nil {
			logging.Logger.Warnf("Event ID: LAST_LOGIN_FAILED, Description: %v", err)
		}
		c.Sessions.DeleteChallenge(challengeID)

		token, err := utils.GenerateToken(user, c.Secret, utils.AccessTokenTTL)
		if err != nil {
			serverError(w, "TOKEN_SIGN_FAILED", err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     utils.TokenCookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			Secure:   !c.Config.Debug,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(utils.AccessTokenTTL.Seconds()),
		})

		logging.Logger.Infof("Event ID: LOGIN_SUCCESS, Description: user %d (%s) logged in", user.ID, user.Role)
		utils.ResponseJSON(w, map[string]interface{}{
			"success":  true,
			"token":    token,
			"role":     user.Role,
			"redirect": dashboardFor(user),
		})
	}
}

// allowChallenge spends one request of the per-challenge budget, so rotating
// client addresses does not buy more guesses.
func (c AuthController) allowChallenge(r *http.Request, name, challengeID string, rule ratelimit.Rule) bool {
	return ratelimit.Allow(r.Context(), c.Limiter, ratelimit.Key(name, "challenge", challengeID), rule)
}

// dropChallenge ends a login attempt and voids its code.
func (c AuthController) dropChallenge(r *http.Request, db *sql.DB, challengeID string, userID int) {
	c.Sessions.DeleteChallenge(challengeID)
	if err := store.ClearUserOTP(r.Context(), db, userID); err != nil {
		logging.Logger.Warnf("Event ID: OTP_CLEAR_FAILED, Description: user %d: %v", userID, err)
	}
}

func (c AuthController) ResendOTP(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		now := c.now()
		challengeID := values.Get("challenge_id")
		if challengeID != "" && !c.allowChallenge(r, "resend_otp", challengeID, ratelimit.ResendRule) {
			ratelimit.Reject(w, ratelimit.ResendRule)
			return
		}
		challenge, err := c.Sessions.Challenge(challengeID, now)
		if challengeID == "" || err != nil {
			badRequest(w, "no_session", "Session expired. Please login again.")
			return
		}
		user, err := store.GetUserByID(r.Context(), db, challenge.UserID)
		if err == store.ErrNotFound {
			notFound(w, "not_found", "User not found.")
			return
		}
		if err != nil {
			serverError(w, "OTP_USER_LOOKUP_FAILED", err)
			return
		}
		if !otp.CanResend(challenge.SentAt, now) {
			utils.RespondWithError(w, http.StatusTooManyRequests, models.Error{
				Message: "Please wait before requesting another OTP.",
				Code:    "too_many_requests",
			})
			return
		}

		code, err := otp.Generate(otp.Length)
		if err == nil {
			err = store.SetUserOTP(r.Context(), db, user.ID, code, now)
		}
		if err == nil {
			err = c.Notifier.SendOTP(r.Context(), notify.PurposeResend, user.Email, user.Phone, code)
		}
		if err != nil {
			logging.Logger.Errorf("Event ID: OTP_RESEND_FAILED, Description: user %d: %v", user.ID, err)
			utils.RespondWithError(w, http.StatusInternalServerError, models.Error{Message: "Failed to resend OTP.", Code: "send_failed"})
			return
		}

		challenge.SentAt = now
		if err := c.Sessions.SaveChallenge(challengeID, challenge); err != nil {
			serverError(w, "CHALLENGE_SAVE_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{"success": true})
	}
}

func (c AuthController) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     utils.TokenCookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
		utils.ResponseJSON(w, map[string]interface{}{
			"success":  true,
			"message":  "You have been logged out successfully.",
			"redirect": "/",
		})
	}
}

func (c AuthController) PasswordReset(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		email := strings.TrimSpace(values.Get("email"))
		if email == "" {
			badRequest(w, "missing_fields", "Email is required.")
			return
		}

		user, err := store.GetUserByEmail(r.Context(), db, email)
		switch {
		case err == nil && user.IsActive:
			token, err := utils.GenerateResetToken(user, c.Secret, utils.PasswordResetTTL)
			if err != nil {
				serverError(w, "RESET_TOKEN_FAILED", err)
				return
			}
			body := "You're receiving this email because you requested a password reset for your account.\n\n" +
				"Use this token to choose a new password:\n\n" + token + "\n\n" +
				"Your username, in case you've forgotten: " + user.Username
			if err := c.Notifier.SendEmail(r.Context(), user.Email, "Password reset", body); err != nil {
				logging.Logger.Errorf("Event ID: RESET_EMAIL_FAILED, Description: user %d: %v", user.ID, err)
			}
		case err != nil && err != store.ErrNotFound:
			serverError(w, "RESET_LOOKUP_FAILED", err)
			return
		}

		utils.ResponseJSON(w, map[string]interface{}{
			"success": true,
			"message": "If an account with that email exists, a password reset email has been sent.",
		})
	}
}

func (c AuthController) PasswordResetConfirm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		invalid := func() {
			badRequest(w, "invalid_token", "The password reset link was invalid, possibly because it has already been used.")
		}
		userID, claims, err := utils.ResetTokenUserID(values.Get("token"), c.Secret)
		if err != nil {
			invalid()
			return
		}
		user, err := store.GetUserByID(r.Context(), db, userID)
		if err != nil || !utils.CheckResetToken(claims, user) {
			invalid()
			return
		}

		p1, p2 := values.Get("new_password1"), values.Get("new_password2")
		var result *multierror.Error
		if p1 == "" || p2 == "" {
			result = multierror.Append(result, utils.FieldError{Field: "new_password2", Message: "This field is required."})
		} else if p1 != p2 {
			result = multierror.Append(result, utils.FieldError{Field: "new_password2", Message: "The two password fields didn't match."})
		} else if err := utils.ValidatePassword("new_password2", p2, user.Username, user.FirstName, user.LastName, user.Email); err != nil {
			result = multierror.Append(result, err)
		}
		if err := result.ErrorOrNil(); err != nil {
			formError(w, "Please correct the errors below.", err)
			return
		}

		hash, err := utils.HashPassword(p1)
		if err != nil {
			serverError(w, "PASSWORD_HASH_FAILED", err)
			return
		}
		if err := store.SetPassword(r.Context(), db, user.ID, hash); err != nil {
			serverError(w, "PASSWORD_SAVE_FAILED", err)
			return
		}
		logging.Logger.Infof("Event ID: PASSWORD_RESET, Description: user %d reset their password", user.ID)
		utils.ResponseJSON(w, map[string]interface{}{"success": true, "message": "Your password has been set. You may go ahead and log in now."})
	}
}
