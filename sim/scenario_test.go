package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario_FullApply(t *testing.T) {
	yaml := `
priority_axis: NS
signal_scheduler: true
collision_guard: false
signs:
  W: STOP
  N: PRIORITY
vehicles:
  - id: CAR_A
    approach: W
    turn: LEFT
    distance_m: 30
    speed_kmh: 25
  - id: CAR_B
    approach: N
    distance_m: 45
    speed_kmh: 30
    cruise_kmh: 38
topics:
  i2v.command:
    drop_rate: 0.25
    latency_min_ticks: 2
`
	scenario, err := LoadScenario(writeTempYAML(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := DefaultSimConfig()
	if err := scenario.Apply(&cfg); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	assert.Equal(t, AxisNS, cfg.Policy.PriorityAxis)
	assert.True(t, cfg.Policy.SignalScheduler)
	assert.False(t, cfg.Policy.CollisionGuard)
	assert.True(t, cfg.Policy.OverlapResolver, "unset toggle keeps its default")

	assert.Equal(t, SignStop, cfg.Signs[ApproachWest])
	assert.Equal(t, SignPriority, cfg.Signs[ApproachNorth])

	if assert.Len(t, cfg.Layout, 2) {
		assert.Equal(t, VehicleSpec{
			ID: "CAR_A", Approach: ApproachWest, Turn: TurnLeft,
			DistanceM: 30, SpeedKmh: 25,
		}, cfg.Layout[0])
		assert.Equal(t, TurnForward, cfg.Layout[1].Turn, "missing turn defaults to FORWARD")
		assert.Equal(t, 38.0, cfg.Layout[1].CruiseKmh)
	}

	profile := cfg.Bus.PerTopic[TopicI2VCommand]
	assert.Equal(t, 0.25, profile.DropRate)
	assert.Equal(t, int64(2), profile.LatencyMinTicks)

	// The merged result must still be a valid run configuration.
	assert.NoError(t, cfg.Validate())
}

func TestScenario_TopicOverrideInheritsDefault(t *testing.T) {
	yaml := `
topics:
  v2v.state:
    latency_min_ticks: 3
`
	scenario, err := LoadScenario(writeTempYAML(t, yaml))
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultSimConfig()
	cfg.Bus.Default.DropRate = 0.2
	if err := scenario.Apply(&cfg); err != nil {
		t.Fatal(err)
	}

	// Only latency was set; the drop rate falls through from Default.
	profile := cfg.Bus.PerTopic[TopicV2VState]
	assert.Equal(t, 0.2, profile.DropRate)
	assert.Equal(t, int64(3), profile.LatencyMinTicks)
}

func TestScenario_RejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad axis", "priority_axis: NE\n"},
		{"bad approach", "vehicles:\n  - id: CAR_A\n    approach: NW\n"},
		{"bad turn", "vehicles:\n  - id: CAR_A\n    approach: W\n    turn: UTURN\n"},
		{"bad sign", "signs:\n  W: FLASHING\n"},
		{"missing vehicle id", "vehicles:\n  - approach: W\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := LoadScenario(writeTempYAML(t, tt.yaml))
			if err != nil {
				t.Fatalf("load should succeed, apply should fail: %v", err)
			}
			cfg := DefaultSimConfig()
			assert.Error(t, scenario.Apply(&cfg))
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	_, err := LoadScenario(writeTempYAML(t, "vehicles: [unclosed"))
	assert.Error(t, err)
}
