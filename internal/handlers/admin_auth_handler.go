package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"privatesend-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

const (
	adminRole     = "admin"
	adminIssuer   = "privatesend-backend-admin"
	adminTokenTTL = 24 * time.Hour
)

// AdminAuthHandler operator login
type AdminAuthHandler struct {
	cfg       config.AdminConfig
	jwtSecret []byte
	logger    *logrus.Logger
}

// AdminLoginRequest admin login request
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminLoginResponse admin login response
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminJWTClaims admin JWT claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminAuthHandler without a configured JWT secret a random one is used,
// so tokens do not survive a restart.
func NewAdminAuthHandler(cfg config.AdminConfig, logger *logrus.Logger) *AdminAuthHandler {
	if cfg.TOTPSecret == "" || cfg.Password == "" {
		logger.Warn("⚠️ ADMIN_TOTP_SECRET or ADMIN_PASSWORD not set, admin login is disabled")
	}

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		jwtSecret = make([]byte, 32)
		if _, err := rand.Read(jwtSecret); err != nil {
			panic(fmt.Sprintf("failed to generate admin JWT secret: %v", err))
		}
		logger.Warn("⚠️ ADMIN_JWT_SECRET not set, using a per-process random secret")
	}

	return &AdminAuthHandler{
		cfg:       cfg,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// JWTSecret secret used to sign and verify admin tokens
func (h *AdminAuthHandler) JWTSecret() []byte {
	return h.jwtSecret
}

// AdminLoginHandler POST /api/admin/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if h.cfg.TOTPSecret == "" || h.cfg.Password == "" {
		c.JSON(http.StatusServiceUnavailable, AdminLoginResponse{
			Success: false,
			Message: "Admin login is not configured",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Same message for both so usernames cannot be probed
	if !constantTimeEqual(req.Username, h.cfg.Username) || !constantTimeEqual(req.Password, h.cfg.Password) {
		h.logger.WithField("username", req.Username).Warn("Admin login failed - invalid credentials")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, h.cfg.TOTPSecret) {
		h.logger.WithField("username", req.Username).Warn("Admin login failed - invalid TOTP code")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid TOTP code",
		})
		return
	}

	token, err := GenerateAdminJWTToken(req.Username, h.jwtSecret, adminTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	h.logger.WithField("username", req.Username).Info("✅ Admin logged in")
	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// GenerateTOTPSecretHandler only available while no TOTP secret is configured
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if h.cfg.TOTPSecret != "" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "TOTP secret already configured",
		})
		return
	}

	key, err := GenerateTOTPKey(h.cfg.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Save this secret to ADMIN_TOTP_SECRET. Use it to generate TOTP codes.",
	})
}

// GenerateTOTPKey new TOTP key for the admin account
func GenerateTOTPKey(username string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      "PrivateSend Admin",
		AccountName: username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
}

// GenerateAdminJWTToken signs an admin token
func GenerateAdminJWTToken(username string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminJWTClaims{
		Username: username,
		Role:     adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    adminIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminJWTToken parses and verifies an admin token
func ValidateAdminJWTToken(tokenString string, secret []byte) (*AdminJWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(adminIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
