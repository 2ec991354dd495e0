package bootstrap

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"orate-studio/internal/domain"
)

// whisperModelCatalog lists the server-side model presets the options
// panel can choose from. The server loads models on demand, so the client
// only needs names and guidance.
var whisperModelCatalog = []domain.WhisperModelOption{
	{
		ID:           "tiny",
		Name:         "Tiny",
		SizeLabel:    "~39M params",
		Description:  "Fastest, lowest accuracy.",
		Multilingual: true,
	},
	{
		ID:          "tiny.en",
		Name:        "Tiny (English)",
		SizeLabel:   "~39M params",
		Description: "Fastest, English-only.",
	},
	{
		ID:           "base",
		Name:         "Base",
		SizeLabel:    "~74M params",
		Description:  "Fast with reasonable accuracy.",
		Multilingual: true,
	},
	{
		ID:          "base.en",
		Name:        "Base (English)",
		SizeLabel:   "~74M params",
		Description: "Fast with reasonable accuracy, English-only.",
	},
	{
		ID:           "small",
		Name:         "Small",
		SizeLabel:    "~244M params",
		Description:  "Balanced speed and quality.",
		Multilingual: true,
	},
	{
		ID:          "small.en",
		Name:        "Small (English)",
		SizeLabel:   "~244M params",
		Description: "Balanced speed and quality, English-only.",
	},
	{
		ID:           "medium",
		Name:         "Medium",
		SizeLabel:    "~769M params",
		Description:  "High quality, slower.",
		Multilingual: true,
	},
	{
		ID:           "large-v2",
		Name:         "Large v2",
		SizeLabel:    "~1.5B params",
		Description:  "Very high quality.",
		Multilingual: true,
	},
	{
		ID:           "large-v3",
		Name:         "Large v3",
		SizeLabel:    "~1.5B params",
		Description:  "Latest large model.",
		Multilingual: true,
	},
	{
		ID:           "large-v3-turbo",
		Name:         "Large v3 Turbo",
		SizeLabel:    "~809M params",
		Description:  "Faster large-v3 variant.",
		Multilingual: true,
	},
}

// ModelCatalog returns the built-in model presets.
func (a *App) ModelCatalog() []domain.WhisperModelOption {
	models := make([]domain.WhisperModelOption, len(whisperModelCatalog))
	copy(models, whisperModelCatalog)
	return models
}

// validateModelID rejects model names the server does not serve.
func validateModelID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("model id is required")
	}
	_, found := lo.Find(whisperModelCatalog, func(m domain.WhisperModelOption) bool {
		return m.ID == trimmed
	})
	if !found {
		return fmt.Errorf("unknown model id: %s", trimmed)
	}
	return nil
}
