package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brensch/runger/executor/generation"
)

// Environment variable helpers

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

// configFlags are the generation settings that can be given on the command
// line or through the environment. They are layered over the JSON config
// file: an explicitly set flag wins, then the env var, then the file.
type configFlags struct {
	gridSize *int
	agents   *int
	length   *int
	seed     *int64
	extinct  *bool
}

func registerConfigFlags(fs *flag.FlagSet) *configFlags {
	return &configFlags{
		gridSize: fs.Int("grid-size", 0, "Board width and height (env RUNGER_GRID_SIZE)"),
		agents:   fs.Int("agents", 0, "Agents placed per generation (env RUNGER_AGENTS)"),
		length:   fs.Int("length", 0, "Ticks per generation (env RUNGER_LENGTH)"),
		seed:     fs.Int64("seed", 0, "Base seed; generation i uses seed+i. 0 picks a time-based seed (env RUNGER_SEED)"),
		extinct:  fs.Bool("end-on-extinction", false, "Finish a generation early when every agent is dead (env RUNGER_END_ON_EXTINCTION)"),
	}
}

// apply layers env vars and explicitly set flags over cfg.
func (c *configFlags) apply(fs *flag.FlagSet, cfg generation.Config) generation.Config {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg.GridSize = int32(pickInt(set["grid-size"], *c.gridSize, "RUNGER_GRID_SIZE", int(cfg.GridSize)))
	cfg.Agents = pickInt(set["agents"], *c.agents, "RUNGER_AGENTS", cfg.Agents)
	cfg.GenerationLength = int32(pickInt(set["length"], *c.length, "RUNGER_LENGTH", int(cfg.GenerationLength)))

	switch {
	case set["seed"]:
		cfg.Seed = *c.seed
	case os.Getenv("RUNGER_SEED") != "":
		var s int64
		if _, err := fmt.Sscanf(os.Getenv("RUNGER_SEED"), "%d", &s); err == nil {
			cfg.Seed = s
		}
	}

	if set["end-on-extinction"] {
		cfg.EndOnExtinction = *c.extinct
	} else {
		cfg.EndOnExtinction = getEnvBoolOrDefault("RUNGER_END_ON_EXTINCTION", cfg.EndOnExtinction)
	}
	return cfg
}

func pickInt(flagSet bool, flagVal int, env string, cur int) int {
	if flagSet {
		return flagVal
	}
	return getEnvIntOrDefault(env, cur)
}

// loadBaseConfig reads path when given, otherwise returns the defaults.
func loadBaseConfig(path string) (generation.Config, error) {
	if path == "" {
		return generation.DefaultConfig(), nil
	}
	return generation.LoadConfig(path)
}
