package models

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

type UserSettings struct {
	AutoDetect    bool   `json:"autoDetect" yaml:"autoDetect"`
	Notifications bool   `json:"notifications" yaml:"notifications"`
	Theme         Theme  `json:"theme" yaml:"theme" validate:"oneof=light dark auto"`
	Language      string `json:"language" yaml:"language" validate:"required"`
}

func DefaultSettings() UserSettings {
	return UserSettings{
		AutoDetect:    true,
		Notifications: true,
		Theme:         ThemeAuto,
		Language:      "en",
	}
}
