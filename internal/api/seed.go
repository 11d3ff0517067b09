package api

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"qaboard/internal/model"
	"qaboard/internal/policy"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedAdminUser 初始化管理员账号（幂等）。
//
// 注册接口只会产生 member，管理员只能来自这里的种子配置。
// 账号已存在时确保其仍是未封禁的管理员。
func (s *Server) SeedAdminUser(ctx context.Context) error {
	email := strings.TrimSpace(strings.ToLower(s.cfg.Security.AdminEmail))
	if email == "" {
		s.logger.Info("admin seed skipped, no admin_email configured")
		return nil
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if s.cfg.Security.AdminPassword == "" {
			s.logger.Warn("admin seed skipped, admin_password not configured", slog.String("email", email))
			return nil
		}
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(s.cfg.Security.AdminPassword), bcrypt.DefaultCost)
		if hashErr != nil {
			return hashErr
		}
		user = model.User{
			Name:     s.cfg.Security.AdminName,
			Email:    email,
			Password: string(hash),
			Role:     policy.RoleAdmin,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
		s.logger.Info("admin user seeded", slog.String("email", email))
		return nil
	}

	updates := map[string]interface{}{
		"role":         policy.RoleAdmin,
		"is_blocked":   false,
		"block_reason": "",
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return err
	}
	return nil
}
