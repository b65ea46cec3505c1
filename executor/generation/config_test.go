package generation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brensch/runger/game"
	"github.com/brensch/runger/rules"
)

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"grid_size": 24,
		"agents": 30,
		"costs": {"Kill": 20, "Idle": 2},
		"enabled_actions": ["Idle", "MoveForward", "Eat", "Eat"],
		"food": {"initial_food": 5, "minimum_food": 2, "food_spawn_chance": 10, "food_energy": 4}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GridSize != 24 || cfg.Agents != 30 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.GenerationLength != DefaultConfig().GenerationLength {
		t.Fatalf("missing field lost its default: %d", cfg.GenerationLength)
	}

	rc, err := cfg.RulesConfig()
	if err != nil {
		t.Fatalf("rules config: %v", err)
	}
	if rc.Costs.Cost(game.Kill) != 20 || rc.Costs.Cost(game.Idle) != 2 || rc.Costs.Cost(game.BuildWall) != rules.DefaultCosts[game.BuildWall] {
		t.Fatalf("costs=%v", rc.Costs)
	}

	actions, err := cfg.Actions()
	if err != nil {
		t.Fatalf("actions: %v", err)
	}
	if len(actions) != 3 || actions[2] != game.Eat {
		t.Fatalf("actions=%v", actions)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown action": `{"enabled_actions": ["Fly"]}`,
		"unknown cost":   `{"costs": {"Fly": 1}}`,
		"unknown field":  `{"gird_size": 3}`,
		"bad grid":       `{"grid_size": 0}`,
		"energy range":   `{"min_start_energy": 9, "max_start_energy": 3}`,
		"crowded":        `{"grid_size": 2, "agents": 5}`,
		"energy cap":     `{"min_start_energy": 1, "max_start_energy": 3000000000}`,
		"food cap":       `{"food": {"food_energy": 3000000000}}`,
		"corpse percent": `{"corpse_energy_percent": -50}`,
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("%s: write: %v", name, err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Fatalf("%s: accepted %s", name, body)
		}
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v want not exist", err)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	want := DefaultConfig()
	want.Seed = 7
	want.EnabledActions = []string{"Kill"}
	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Seed != 7 || len(got.EnabledActions) != 1 || got.Food != want.Food {
		t.Fatalf("got=%+v", got)
	}
}

func TestUniformStrategy_StaysInSet(t *testing.T) {
	u := NewUniformStrategy([]game.Action{game.Eat, game.Kill}, nil)
	seen := map[game.Action]int{}
	for i := 0; i < 200; i++ {
		seen[u.Choose(nil, 0)]++
	}
	if len(seen) != 2 || seen[game.Eat] == 0 || seen[game.Kill] == 0 {
		t.Fatalf("draws=%v", seen)
	}
}

func TestValidate_EnergyCapAndCorpseDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinStartEnergy = game.MaxEnergy
	cfg.MaxStartEnergy = game.MaxEnergy
	cfg.CorpseEnergyPercent = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	rc, err := cfg.RulesConfig()
	if err != nil {
		t.Fatalf("rules config: %v", err)
	}
	if got := rules.NewResolver(rc, nil).Config().CorpseEnergyPercent; got != 100 {
		t.Fatalf("corpse percent=%d want 100", got)
	}

	cfg.MaxStartEnergy = game.MaxEnergy + 1
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err=%v want ErrInvalidConfig", err)
	}
}
