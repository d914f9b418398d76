package arena

import "time"

// ModeDefaults returns the baseline MatchConfig for a mode before any
// custom-lobby overrides are applied.
func ModeDefaults(mode MatchMode, languageWhitelist []string) MatchConfig {
	cfg := MatchConfig{
		RoundTimeLimit:    300 * time.Second,
		MaxPlayers:        2,
		LanguageWhitelist: languageWhitelist,
		Weights:           DefaultScoreWeights,
	}
	switch mode {
	case ModeBlitz:
		cfg.RoundCount = 10
		cfg.RoundTimeLimit = 60 * time.Second
		cfg.IsRanked = true
	case ModePractice:
		cfg.RoundCount = 1
		cfg.MaxPlayers = 1
	case ModeRanked:
		cfg.RoundCount = 3
		cfg.IsRanked = true
	case ModeCasual:
		cfg.RoundCount = 3
	case ModeTrivia, ModeDebug:
		cfg.RoundCount = 5
	case ModeCustom:
		cfg.RoundCount = 3
		cfg.MaxPlayers = 4
	default:
		cfg.RoundCount = 3
	}
	return cfg
}
