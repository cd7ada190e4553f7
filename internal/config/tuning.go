package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Tuning holds the constants that shape a search. It is passed to the engine
// explicitly so concurrent searches may run with different values.
type Tuning struct {
	// WalkingSpeed applies along road-graph edges, in m/s.
	WalkingSpeed float64 `yaml:"walking_speed_mps" validate:"gt=0"`
	// StraightWalkingSpeed applies to off-graph straight lines, in m/s. Must not
	// exceed WalkingSpeed or the candidate radius stops being an upper bound.
	StraightWalkingSpeed float64 `yaml:"straight_walking_speed_mps" validate:"gt=0,ltefield=WalkingSpeed"`
	MinTransferSeconds   float64 `yaml:"min_transfer_seconds" validate:"gte=0"`
	// SnapToleranceMeters is how close a point must be to a road node or a
	// settled label to be treated as coincident with it.
	SnapToleranceMeters float64 `yaml:"snap_tolerance_m" validate:"gte=0"`
	// MaxWalkRadiusMeters bounds walking-candidate discovery per settled label.
	MaxWalkRadiusMeters float64 `yaml:"max_walk_radius_m" validate:"gt=0"`
	// PathCacheSize is the number of shortest-path trees kept per walker.
	PathCacheSize int `yaml:"path_cache_size" validate:"gte=0"`
}

const (
	WalkingSpeed         = 1.25
	StraightWalkingSpeed = 0.90
	MinTransferSeconds   = 4.0
)

func DefaultTuning() Tuning {
	return Tuning{
		WalkingSpeed:         WalkingSpeed,
		StraightWalkingSpeed: StraightWalkingSpeed,
		MinTransferSeconds:   MinTransferSeconds,
		SnapToleranceMeters:  25,
		MaxWalkRadiusMeters:  1500,
		PathCacheSize:        4096,
	}
}

// LoadTuning reads a YAML tuning file. Keys missing from the file keep their defaults.
func LoadTuning(path string) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	t := DefaultTuning()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, err
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	return validator.New().Struct(t)
}
