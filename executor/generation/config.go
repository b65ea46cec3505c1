package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/brensch/runger/game"
	"github.com/brensch/runger/rules"
)

var ErrInvalidConfig = errors.New("invalid generation config")

// Config holds everything a generation treats as opaque input.
type Config struct {
	GridSize         int32  `json:"grid_size"`
	Agents           int    `json:"agents"`
	GenerationLength int32  `json:"generation_length"`
	MinStartEnergy   uint32 `json:"min_start_energy"`
	MaxStartEnergy   uint32 `json:"max_start_energy"`

	// Each agent gets a line of sight length drawn from [MinLOS, MaxLOS].
	MinLOS int32 `json:"min_los"`
	MaxLOS int32 `json:"max_los"`

	MaxDisengage int `json:"max_disengage"`
	// CorpseEnergyPercent of 0 means 100.
	CorpseEnergyPercent int `json:"corpse_energy_percent"`

	// Costs overrides entries of rules.DefaultCosts by action name.
	Costs map[string]uint32 `json:"costs,omitempty"`

	Food rules.FoodSettings `json:"food"`

	// EnabledActions lists action names the uniform strategy draws from.
	// Empty means every action.
	EnabledActions []string `json:"enabled_actions,omitempty"`

	Seed            int64 `json:"seed"`
	EndOnExtinction bool  `json:"end_on_extinction"`
}

func DefaultConfig() Config {
	return Config{
		GridSize:            16,
		Agents:              20,
		GenerationLength:    200,
		MinStartEnergy:      20,
		MaxStartEnergy:      60,
		MinLOS:              2,
		MaxLOS:              6,
		MaxDisengage:        rules.DefaultConfig.MaxDisengage,
		CorpseEnergyPercent: rules.DefaultConfig.CorpseEnergyPercent,
		Food:                rules.DefaultFoodSettings,
	}
}

// LoadConfig reads a JSON config file over DefaultConfig. Fields missing from
// the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, for seeding a config file.
func SaveConfig(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	if err := enc.Encode(cfg); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c Config) Validate() error {
	switch {
	case c.GridSize <= 0:
		return fmt.Errorf("%w: grid_size must be positive, got %d", ErrInvalidConfig, c.GridSize)
	case c.Agents < 0:
		return fmt.Errorf("%w: agents must not be negative, got %d", ErrInvalidConfig, c.Agents)
	case int64(c.Agents) > int64(c.GridSize)*int64(c.GridSize):
		return fmt.Errorf("%w: %d agents do not fit on a %dx%d grid", ErrInvalidConfig, c.Agents, c.GridSize, c.GridSize)
	case c.GenerationLength <= 0:
		return fmt.Errorf("%w: generation_length must be positive, got %d", ErrInvalidConfig, c.GenerationLength)
	case c.MinStartEnergy == 0 || c.MaxStartEnergy < c.MinStartEnergy:
		return fmt.Errorf("%w: start energy range [%d, %d]", ErrInvalidConfig, c.MinStartEnergy, c.MaxStartEnergy)
	case c.MaxStartEnergy > game.MaxEnergy:
		return fmt.Errorf("%w: max_start_energy %d above %d", ErrInvalidConfig, c.MaxStartEnergy, game.MaxEnergy)
	case c.Food.FoodEnergy > game.MaxEnergy:
		return fmt.Errorf("%w: food_energy %d above %d", ErrInvalidConfig, c.Food.FoodEnergy, game.MaxEnergy)
	case c.CorpseEnergyPercent < 0:
		return fmt.Errorf("%w: corpse_energy_percent must not be negative, got %d", ErrInvalidConfig, c.CorpseEnergyPercent)
	case c.MinLOS <= 0 || c.MaxLOS < c.MinLOS:
		return fmt.Errorf("%w: line of sight range [%d, %d]", ErrInvalidConfig, c.MinLOS, c.MaxLOS)
	case c.MaxDisengage < 0:
		return fmt.Errorf("%w: max_disengage must not be negative, got %d", ErrInvalidConfig, c.MaxDisengage)
	}
	if _, err := c.costTable(); err != nil {
		return err
	}
	if _, err := c.Actions(); err != nil {
		return err
	}
	return nil
}

// RulesConfig builds the resolver config.
func (c Config) RulesConfig() (rules.Config, error) {
	costs, err := c.costTable()
	if err != nil {
		return rules.Config{}, err
	}
	return rules.Config{
		MaxDisengage:        c.MaxDisengage,
		CorpseEnergyPercent: c.CorpseEnergyPercent,
		Costs:               costs,
	}, nil
}

func (c Config) costTable() (rules.CostTable, error) {
	costs := rules.DefaultCosts
	for name, v := range c.Costs {
		a, err := game.ParseAction(name)
		if err != nil {
			return costs, fmt.Errorf("%w: costs: %w", ErrInvalidConfig, err)
		}
		costs[a] = v
	}
	return costs, nil
}

// Actions resolves EnabledActions to a deduplicated action list.
func (c Config) Actions() ([]game.Action, error) {
	if len(c.EnabledActions) == 0 {
		return game.AllActions(), nil
	}
	seen := make(map[game.Action]bool, len(c.EnabledActions))
	out := make([]game.Action, 0, len(c.EnabledActions))
	for _, name := range c.EnabledActions {
		a, err := game.ParseAction(name)
		if err != nil {
			return nil, fmt.Errorf("%w: enabled_actions: %w", ErrInvalidConfig, err)
		}
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out, nil
}
