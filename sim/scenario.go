package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a YAML-loadable run description: pinned vehicle layouts,
// sign overrides, overlay toggles, and bus fault profiles. Nil pointer
// fields mean "not set" and leave the base configuration untouched.
type Scenario struct {
	VehicleCount int               `yaml:"vehicle_count"`
	PriorityAxis string            `yaml:"priority_axis"`
	Signs        map[string]string `yaml:"signs"`
	Vehicles     []scenarioVehicle `yaml:"vehicles"`

	SignalScheduler *bool `yaml:"signal_scheduler"`
	CollisionGuard  *bool `yaml:"collision_guard"`
	OverlapResolver *bool `yaml:"overlap_resolver"`

	Topics map[string]scenarioTopic `yaml:"topics"`
}

type scenarioVehicle struct {
	ID        string  `yaml:"id"`
	Approach  string  `yaml:"approach"`
	Turn      string  `yaml:"turn"`
	DistanceM float64 `yaml:"distance_m"`
	SpeedKmh  float64 `yaml:"speed_kmh"`
	CruiseKmh float64 `yaml:"cruise_kmh"`
}

type scenarioTopic struct {
	DropRate           *float64 `yaml:"drop_rate"`
	LatencyMinTicks    *int64   `yaml:"latency_min_ticks"`
	LatencyJitterTicks *int64   `yaml:"latency_jitter_ticks"`
}

// LoadScenario reads and parses a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &s, nil
}

func parseTurn(s string) (Turn, error) {
	switch s {
	case "LEFT":
		return TurnLeft, nil
	case "RIGHT":
		return TurnRight, nil
	case "FORWARD", "":
		return TurnForward, nil
	}
	return TurnForward, fmt.Errorf("unknown turn %q", s)
}

func parseApproach(s string) (Approach, error) {
	switch Approach(s) {
	case ApproachNorth, ApproachSouth, ApproachEast, ApproachWest:
		return Approach(s), nil
	}
	return "", fmt.Errorf("unknown approach %q", s)
}

// Apply merges the scenario into cfg. Unset fields leave cfg alone;
// malformed values return an error without partially applying.
func (s *Scenario) Apply(cfg *SimConfig) error {
	if s.PriorityAxis != "" {
		axis := Axis(s.PriorityAxis)
		if axis != AxisEW && axis != AxisNS {
			return &ConfigError{Field: "priority_axis", Reason: "must be EW or NS"}
		}
		cfg.Policy.PriorityAxis = axis
	}
	if s.VehicleCount > 0 {
		cfg.VehicleCount = s.VehicleCount
	}
	if s.SignalScheduler != nil {
		cfg.Policy.SignalScheduler = *s.SignalScheduler
	}
	if s.CollisionGuard != nil {
		cfg.Policy.CollisionGuard = *s.CollisionGuard
	}
	if s.OverlapResolver != nil {
		cfg.Policy.OverlapResolver = *s.OverlapResolver
	}

	if len(s.Signs) > 0 {
		if cfg.Signs == nil {
			cfg.Signs = make(map[Approach]Sign, len(s.Signs))
		}
		for arm, name := range s.Signs {
			approach, err := parseApproach(arm)
			if err != nil {
				return fmt.Errorf("signs: %w", err)
			}
			sign, err := ParseSign(name)
			if err != nil {
				return fmt.Errorf("signs[%s]: %w", arm, err)
			}
			cfg.Signs[approach] = sign
		}
	}

	for _, sv := range s.Vehicles {
		approach, err := parseApproach(sv.Approach)
		if err != nil {
			return fmt.Errorf("vehicle %s: %w", sv.ID, err)
		}
		turn, err := parseTurn(sv.Turn)
		if err != nil {
			return fmt.Errorf("vehicle %s: %w", sv.ID, err)
		}
		if sv.ID == "" {
			return &ConfigError{Field: "vehicles", Reason: "every scenario vehicle needs an id"}
		}
		cfg.Layout = append(cfg.Layout, VehicleSpec{
			ID:        sv.ID,
			Approach:  approach,
			Turn:      turn,
			DistanceM: sv.DistanceM,
			SpeedKmh:  sv.SpeedKmh,
			CruiseKmh: sv.CruiseKmh,
		})
	}

	for topic, tp := range s.Topics {
		profile := cfg.Bus.profile(topic)
		if tp.DropRate != nil {
			profile.DropRate = *tp.DropRate
		}
		if tp.LatencyMinTicks != nil {
			profile.LatencyMinTicks = *tp.LatencyMinTicks
		}
		if tp.LatencyJitterTicks != nil {
			profile.LatencyJitterTicks = *tp.LatencyJitterTicks
		}
		if cfg.Bus.PerTopic == nil {
			cfg.Bus.PerTopic = make(map[string]TopicProfile)
		}
		cfg.Bus.PerTopic[topic] = profile
	}
	return nil
}
