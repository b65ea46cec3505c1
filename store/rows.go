package store

// TickRow is a single (generation, turn) snapshot taken after the tick
// resolved. One row per turn, with nested per-player data.
//
// Actions are stored by name so archives stay readable if the action set
// grows. Attempted is empty for agents that were not asked for an intent.
type TickRow struct {
	GenerationID string `parquet:"generation_id,dict" json:"generation_id"`
	Turn         int32  `parquet:"turn" json:"turn"`
	Width        int32  `parquet:"width" json:"width"`
	Height       int32  `parquet:"height" json:"height"`

	FoodX      []int32  `parquet:"food_x" json:"food_x"`
	FoodY      []int32  `parquet:"food_y" json:"food_y"`
	FoodEnergy []int32  `parquet:"food_energy" json:"food_energy"`
	FoodKind   []string `parquet:"food_kind" json:"food_kind"`

	WallX []int32 `parquet:"wall_x" json:"wall_x"`
	WallY []int32 `parquet:"wall_y" json:"wall_y"`

	Players []PlayerRow `parquet:"players" json:"players"`

	Sightings int32 `parquet:"sightings" json:"sightings"`
	Errors    int32 `parquet:"errors" json:"errors"`

	Source string `parquet:"source,dict" json:"source"`
	// ModelPath is set when a learned policy chose the actions.
	ModelPath string `parquet:"model_path,dict,optional" json:"model_path,omitempty"`
}

type PlayerRow struct {
	ID      int32  `parquet:"id" json:"id"`
	X       int32  `parquet:"x" json:"x"`
	Y       int32  `parquet:"y" json:"y"`
	Facing  string `parquet:"facing,dict" json:"facing"`
	Energy  int32  `parquet:"energy" json:"energy"`
	Alive   bool   `parquet:"alive" json:"alive"`
	OnBoard bool   `parquet:"on_board" json:"on_board"`
	LOS     int32  `parquet:"los" json:"los"`

	Attempted string `parquet:"attempted,dict" json:"attempted"`
	Taken     string `parquet:"taken,dict" json:"taken"`
}

// GenerationRow is the end-of-generation survival summary.
type GenerationRow struct {
	GenerationID string  `parquet:"generation_id,dict" json:"generation_id"`
	Seed         int64   `parquet:"seed" json:"seed"`
	Width        int32   `parquet:"width" json:"width"`
	Height       int32   `parquet:"height" json:"height"`
	Turns        int32   `parquet:"turns" json:"turns"`
	Agents       int32   `parquet:"agents" json:"agents"`
	Alive        int32   `parquet:"alive" json:"alive"`
	Fraction     float64 `parquet:"fraction" json:"fraction"`
	Kills        int32   `parquet:"kills" json:"kills"`
	FoodEaten    int32   `parquet:"food_eaten" json:"food_eaten"`
	WallsBuilt   int32   `parquet:"walls_built" json:"walls_built"`
	Starved      int32   `parquet:"starved" json:"starved"`
	StartedNs    int64   `parquet:"started_ns" json:"started_ns"`
	FinishedNs   int64   `parquet:"finished_ns" json:"finished_ns"`
	Source       string  `parquet:"source,dict" json:"source"`
}
