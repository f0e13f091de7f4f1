package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/logger"
	"github.com/213020aumc/matcha/internal/repository"
)

// SettingsService manages the key/value settings consulted by mail composition.
type SettingsService struct {
	tx         port.Transactor
	repos      port.Repositories
	authorizer *Authorizer
	logger     *zap.Logger
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(tx port.Transactor, repos port.Repositories, authorizer *Authorizer, log *zap.Logger) *SettingsService {
	return &SettingsService{tx: tx, repos: repos, authorizer: authorizer, logger: log}
}

// Get returns the stored value for key, or fallback when it is missing, blank or unreadable.
func (s *SettingsService) Get(ctx context.Context, key, fallback string) string {
	setting, err := s.repos.Settings.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.WithContext(ctx).Warn("Failed to read setting", zap.String("key", key), zap.Error(err))
		}
		return fallback
	}
	if strings.TrimSpace(setting.Value) == "" {
		return fallback
	}
	return setting.Value
}

func (s *SettingsService) List(ctx context.Context, actorID string) ([]domain.Setting, error) {
	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermSettingsView); err != nil {
		return nil, err
	}
	settings, err := s.repos.Settings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// Update upserts every pair in values in one transaction and returns the resulting settings.
func (s *SettingsService) Update(ctx context.Context, actorID string, values map[string]string) ([]domain.Setting, error) {
	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermSettingsManage); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, domain.NewValidationError("settings_required", "at least one setting is required", "settings")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			return nil, domain.NewValidationError("invalid_setting_key", "setting keys cannot be blank", "settings")
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		for _, k := range keys {
			if err := repos.Settings.Upsert(ctx, strings.TrimSpace(k), values[k]); err != nil {
				return fmt.Errorf("update setting %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Settings updated", zap.Strings("keys", keys), zap.String("updated_by", actorID))
	return s.repos.Settings.List(ctx)
}

// Delete removes key. Protected keys cannot be removed.
func (s *SettingsService) Delete(ctx context.Context, actorID, key string) error {
	if _, err := s.authorizer.Authorize(ctx, actorID, domain.PermSettingsManage); err != nil {
		return err
	}
	if _, protected := domain.ProtectedSettings[key]; protected {
		return domain.ErrProtectedSetting
	}

	if err := s.repos.Settings.Delete(ctx, key); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrSettingNotFound
		}
		return fmt.Errorf("delete setting: %w", err)
	}
	return nil
}

// SeedDefaults inserts every default that is not stored yet. Existing values are kept.
func (s *SettingsService) SeedDefaults(ctx context.Context) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		for _, d := range domain.DefaultSettings {
			if err := repos.Settings.InsertMissing(ctx, d.Key, d.Value); err != nil {
				return fmt.Errorf("seed setting %s: %w", d.Key, err)
			}
		}
		s.logger.Info("Default settings ensured", zap.Int("count", len(domain.DefaultSettings)))
		return nil
	})
}

var _ port.SettingsProvider = (*SettingsService)(nil)
