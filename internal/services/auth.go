package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/utils"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
)

var errBadCredentials = response.NewUnauthorized("invalid email or password")

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
	configSvc *SystemConfigService
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{
		db:        db,
		jwtConfig: jwtCfg,
		configSvc: NewSystemConfigService(db),
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
	User            *models.User
}

type RefreshResult struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. A taken email is rejected as a bad request.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, response.NewBadRequest("email and password are required")
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return nil, response.NewBadRequest(err.Error())
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, storageFailure("check email", err)
	}
	if count > 0 {
		return nil, response.NewBadRequest("email already registered")
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, storageFailure("hash password", err)
	}

	user := models.User{
		Email:    email,
		Password: hashed,
		Name:     strings.TrimSpace(req.Name),
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, response.NewBadRequest("email already registered")
		}
		return nil, storageFailure("create user", err)
	}
	return &user, nil
}

// Login checks the credentials and issues an access/refresh token pair.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest, clientIP, userAgent string) (*LoginResult, error) {
	user, err := s.checkCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	accessHours := s.getAccessTokenExpireHours()
	refreshHours := s.getRefreshTokenExpireHours()

	token, err := utils.GenerateToken(user.ID, user.Email, accessHours)
	if err != nil {
		return nil, storageFailure("sign token", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, storageFailure("generate refresh token", err)
	}

	now := time.Now()
	refreshRecord := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   refreshHash,
		ExpiresAt:   now.Add(time.Duration(refreshHours) * time.Hour),
		CreatedByIP: clientIP,
		UserAgent:   truncate(userAgent, 255),
	}

	db := s.db.WithContext(ctx)
	if err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&refreshRecord).Error; err != nil {
			return err
		}
		return tx.Model(user).UpdateColumn("last_login", now).Error
	}); err != nil {
		return nil, storageFailure("store refresh token", err)
	}
	user.LastLogin = &now

	return &LoginResult{
		AccessToken:     token,
		AccessExpireAt:  now.Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    refreshToken,
		RefreshExpireAt: refreshRecord.ExpiresAt,
		User:            user,
	}, nil
}

// Authenticate returns a fresh access token for valid credentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, error) {
	user, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return "", err
	}
	return utils.GenerateToken(user.ID, user.Email, s.getAccessTokenExpireHours())
}

// Verify resolves an access token to the user id it was issued for.
func (s *AuthService) Verify(token string) (string, error) {
	claims, err := utils.ParseToken(token)
	if err != nil {
		return "", response.NewUnauthorized("invalid or expired token")
	}
	return claims.UserID, nil
}

// Refresh rotates a refresh token: the old one is revoked and linked to its
// replacement in one transaction.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, clientIP, userAgent string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, response.NewBadRequest("refresh token required")
	}

	db := s.db.WithContext(ctx)
	var stored models.RefreshToken
	if err := db.Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid refresh token")
		}
		return nil, storageFailure("load refresh token", err)
	}

	if stored.RevokedAt != nil {
		return nil, response.NewUnauthorized("refresh token revoked")
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, response.NewUnauthorized("refresh token expired")
	}

	user, err := s.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, response.NewUnauthorized("user not found")
	}

	accessHours := s.getAccessTokenExpireHours()
	refreshHours := s.getRefreshTokenExpireHours()

	newAccessToken, err := utils.GenerateToken(user.ID, user.Email, accessHours)
	if err != nil {
		return nil, storageFailure("sign token", err)
	}

	newRefreshToken, newRefreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, storageFailure("generate refresh token", err)
	}

	now := time.Now()
	newRefresh := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   newRefreshHash,
		ExpiresAt:   now.Add(time.Duration(refreshHours) * time.Hour),
		CreatedByIP: clientIP,
		UserAgent:   truncate(userAgent, 255),
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newRefresh).Error; err != nil {
			return err
		}
		// the revoked_at guard makes a concurrent second rotation of the same token fail
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", stored.ID).
			Updates(map[string]interface{}{
				"revoked_at":           now,
				"replaced_by_token_id": newRefresh.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRefreshRaced
		}
		return nil
	}); err != nil {
		if errors.Is(err, errRefreshRaced) {
			return nil, response.NewUnauthorized("refresh token revoked")
		}
		return nil, storageFailure("rotate refresh token", err)
	}

	return &RefreshResult{
		AccessToken:     newAccessToken,
		AccessExpireAt:  now.Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    newRefreshToken,
		RefreshExpireAt: newRefresh.ExpiresAt,
	}, nil
}

var errRefreshRaced = errors.New("refresh token already rotated")

func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", time.Now()).Error; err != nil {
		return storageFailure("revoke refresh token", err)
	}
	return nil
}

// DeleteStaleRefreshTokens removes tokens that are expired, or that were
// revoked before revokedBefore.
func DeleteStaleRefreshTokens(ctx context.Context, db *gorm.DB, revokedBefore time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)", time.Now(), revokedBefore).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("user not found")
		}
		return nil, storageFailure("load user", err)
	}
	return &user, nil
}

func (s *AuthService) checkCredentials(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, response.NewBadRequest("email and password are required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errBadCredentials
		}
		return nil, storageFailure("load user", err)
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, errBadCredentials
	}
	return &user, nil
}

func (s *AuthService) getAccessTokenExpireHours() int {
	defaultHours := s.jwtConfig.ExpireHour
	if defaultHours <= 0 {
		defaultHours = 24
	}
	return s.configSvc.GetInt("auth_access_token_expire_hours", defaultHours)
}

func (s *AuthService) getRefreshTokenExpireHours() int {
	defaultHours := s.jwtConfig.RefreshExpireHour
	if defaultHours <= 0 {
		defaultHours = 720
	}
	return s.configSvc.GetInt("auth_refresh_token_expire_hours", defaultHours)
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	tokenHash = hashRefreshToken(token)
	return token, tokenHash, nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
