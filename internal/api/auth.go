package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/pennyflow/backend/internal/config"
	"github.com/pennyflow/backend/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

const minPasswordLength = 8

// RegisterRequest represents registration input
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents login response
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// HandleRegister handles user registration
func HandleRegister(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		email, ok := normalizeEmail(req.Email)
		if !ok {
			respondError(w, http.StatusBadRequest, "Valid email required")
			return
		}
		if err := validatePassword(req.Password); err != "" {
			respondError(w, http.StatusBadRequest, err)
			return
		}

		var existing models.User
		if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
			// Generic message to prevent user enumeration
			respondError(w, http.StatusBadRequest, "Registration failed")
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Println("Register: failed to hash password:", err)
			respondError(w, http.StatusInternalServerError, "Registration failed")
			return
		}

		user := models.User{
			Email:     email,
			Password:  string(hashed),
			CreatedAt: time.Now(),
		}
		if err := db.Create(&user).Error; err != nil {
			log.Println("Register: failed to create user:", err)
			respondError(w, http.StatusBadRequest, "Registration failed")
			return
		}

		respondJSON(w, http.StatusCreated, map[string]any{
			"id":    user.ID,
			"email": user.Email,
		})
	}
}

// HandleLogin handles user login
func HandleLogin(db *gorm.DB, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		email, ok := normalizeEmail(req.Email)
		if !ok {
			respondError(w, http.StatusBadRequest, "Valid email required")
			return
		}

		var user models.User
		if err := db.Where("email = ?", email).First(&user).Error; err != nil {
			log.Println("Login: authentication failed - user not found")
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			log.Println("Login: authentication failed - invalid password")
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := generateJWT(user.ID, cfg.JWTSecret)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}

		respondJSON(w, http.StatusOK, LoginResponse{Token: token, User: &user})
	}
}

// HandleLogout handles user logout
func HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Stateless JWTs: logout is handled client-side
		respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
	}
}

// HandleGetCurrentUser returns the current authenticated user
func HandleGetCurrentUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, currentUser(r))
	}
}

// UpdateEmailRequest represents an email change
type UpdateEmailRequest struct {
	NewEmail string `json:"new_email"`
}

// HandleUpdateEmail changes the authenticated user's email
func HandleUpdateEmail(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)

		var req UpdateEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		email, ok := normalizeEmail(req.NewEmail)
		if !ok {
			respondError(w, http.StatusBadRequest, "Valid email required")
			return
		}

		var existing models.User
		if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
			respondError(w, http.StatusBadRequest, "Change email failed")
			return
		}

		if err := db.Model(user).Update("email", email).Error; err != nil {
			log.Println("UpdateEmail: failed to update user:", err)
			respondError(w, http.StatusInternalServerError, "Change email failed")
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{"id": user.ID, "email": email})
	}
}

// UpdatePasswordRequest represents a password change
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// HandleUpdatePassword changes the authenticated user's password after
// verifying the current one
func HandleUpdatePassword(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)

		var req UpdatePasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request")
			return
		}
		if err := validatePassword(req.NewPassword); err != "" {
			respondError(w, http.StatusBadRequest, err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
			respondError(w, http.StatusUnauthorized, "Current password incorrect")
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Change password failed")
			return
		}

		if err := db.Model(user).Update("password", string(hashed)).Error; err != nil {
			log.Println("UpdatePassword: failed to update user:", err)
			respondError(w, http.StatusInternalServerError, "Change password failed")
			return
		}

		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// AuthMiddleware validates JWT tokens and loads the user into the request
// context
func AuthMiddleware(jwtSecret string, db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			rawID, ok := claims["user_id"].(float64)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			var user models.User
			if err := db.Where("id = ?", int(rawID)).First(&user).Error; err != nil {
				log.Println("AuthMiddleware: failed to load user:", err)
				respondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUser returns the authenticated user placed in context by
// AuthMiddleware
func currentUser(r *http.Request) *models.User {
	return r.Context().Value(userContextKey).(*models.User)
}

// generateJWT generates a session JWT for a user
func generateJWT(userID int, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func normalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", false
	}
	return email, true
}

func validatePassword(password string) string {
	if len(password) < minPasswordLength {
		return "Password must be at least 8 characters"
	}
	if strings.ContainsAny(password, " \t\n") {
		return "Password must not contain spaces"
	}
	return ""
}
