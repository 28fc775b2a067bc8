package popup

import (
	"context"
	"fmt"

	"github.com/LexiconIndonesia/covercraft-service/common/kv"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/go-playground/validator/v10"
)

// KeySettings is the sync-scope key of the user preferences.
const KeySettings = "settings"

type Settings struct {
	store    kv.Store
	validate *validator.Validate
}

func NewSettings(store kv.Store) *Settings {
	return &Settings{store: store, validate: validator.New()}
}

// Load returns the stored preferences, or the defaults when none were saved.
func (s *Settings) Load(ctx context.Context) (models.UserSettings, error) {
	stored, err := kv.GetJSON[models.UserSettings](ctx, s.store, KeySettings)
	if err != nil {
		return models.UserSettings{}, fmt.Errorf("loading settings: %w", err)
	}
	return stored.OrElse(models.DefaultSettings()), nil
}

func (s *Settings) Save(ctx context.Context, settings models.UserSettings) error {
	if err := s.validate.Struct(settings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return kv.SetJSON(ctx, s.store, KeySettings, settings)
}
