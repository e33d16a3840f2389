package backend

import (
	"fmt"

	"emprestimos/internal/config"
)

// FromAppConfig converts the application config to mirror config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	mirrorType := MirrorType(appConfig.MirrorBackend)
	if !mirrorType.IsValid() {
		return Config{}, fmt.Errorf("invalid mirror type in config: %s", appConfig.MirrorBackend)
	}

	return Config{
		Type: mirrorType,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,

		PostgresURL: appConfig.PostgresURL,

		DataDirectory: appConfig.MirrorDataDir,
	}, nil
}

// Validate validates the mirror configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid mirror type: %s", c.Type)
	}

	switch c.Type {
	case SheetsMirror:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets mirror")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("either GoogleServiceAccountJSON or GoogleServiceAccountFile must be provided for sheets mirror")
		}
	case PostgresMirror:
		if c.PostgresURL == "" {
			return fmt.Errorf("Postgres URL is required for postgres mirror")
		}
	}

	return nil
}

// MirrorTypes returns all valid mirror types
func MirrorTypes() []MirrorType {
	return []MirrorType{NoMirror, MemoryMirror, SheetsMirror, PostgresMirror}
}
