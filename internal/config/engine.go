package config

import (
	"fmt"
	"time"
)

const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// EngineConfig holds the diagnostic engine tunables
type EngineConfig struct {
	// StartingDifficulty seeds every subtopic and the session snapshot
	StartingDifficulty int `json:"startingDifficulty"`

	// SubtopicQuota is the number of questions asked per subtopic
	SubtopicQuota int `json:"subtopicQuota"`

	// StateTTL must outlive a single sitting
	StateTTL time.Duration `json:"stateTtl"`

	// GenerationFlagTTL bounds how long the report generation claim is held
	GenerationFlagTTL time.Duration `json:"generationFlagTtl"`
}

// DefaultEngineConfig returns the built-in engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StartingDifficulty: 3,
		SubtopicQuota:      5,
		StateTTL:           24 * time.Hour,
		GenerationFlagTTL:  6 * time.Hour,
	}
}

// LoadEngineConfig overlays DIAG_* environment variables on the defaults
func LoadEngineConfig() EngineConfig {
	def := DefaultEngineConfig()
	return EngineConfig{
		StartingDifficulty: getEnvInt("DIAG_START_DIFFICULTY", def.StartingDifficulty),
		SubtopicQuota:      getEnvInt("DIAG_SUBTOPIC_QUOTA", def.SubtopicQuota),
		StateTTL:           getEnvDuration("DIAG_STATE_TTL", def.StateTTL),
		GenerationFlagTTL:  getEnvDuration("DIAG_GENERATION_FLAG_TTL", def.GenerationFlagTTL),
	}
}

func (c EngineConfig) Validate() error {
	if c.StartingDifficulty < MinDifficulty || c.StartingDifficulty > MaxDifficulty {
		return fmt.Errorf("starting difficulty %d outside [%d,%d]", c.StartingDifficulty, MinDifficulty, MaxDifficulty)
	}
	if c.SubtopicQuota < 1 {
		return fmt.Errorf("subtopic quota must be at least 1, got %d", c.SubtopicQuota)
	}
	if c.StateTTL <= 0 || c.GenerationFlagTTL <= 0 {
		return fmt.Errorf("ttl values must be positive")
	}
	return nil
}
