package service

import (
	"context"
	"strings"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

func defaultSettings() domain.StoreSettings {
	return domain.StoreSettings{
		StoreName:         "Inventory Pro",
		ThankYouMessage:   "Thank you for your purchase!",
		NextTransactionID: 1,
	}
}

func (s *Service) GetSettings(ctx context.Context) (domain.StoreSettings, error) {
	settings, ok, err := s.repo.Settings(ctx)
	if err != nil {
		return domain.StoreSettings{}, err
	}
	if !ok {
		return defaultSettings(), nil
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, update domain.SettingsUpdate) (domain.StoreSettings, error) {
	if _, err := requireRole(ctx, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return domain.StoreSettings{}, err
	}

	unlock := s.repo.Lock(store.Settings)
	settings, err := s.GetSettings(ctx)
	if err != nil {
		unlock()
		return domain.StoreSettings{}, err
	}
	changed := make([]string, 0, 5)
	set := func(field string, dst *string, value *string) {
		if value != nil {
			*dst = strings.TrimSpace(*value)
			changed = append(changed, field)
		}
	}
	set("storeName", &settings.StoreName, update.StoreName)
	set("address", &settings.Address, update.Address)
	set("phone", &settings.Phone, update.Phone)
	set("thankYouMessage", &settings.ThankYouMessage, update.ThankYouMessage)
	set("logo", &settings.Logo, update.Logo)
	err = s.repo.SaveSettings(ctx, settings)
	unlock()
	if err != nil {
		return domain.StoreSettings{}, err
	}

	s.logActivity(ctx, domain.CategorySettings, "settings_updated", "changed "+strings.Join(changed, ", "))
	return settings, nil
}
