package main

// GenerationSummary is one entry of the generations list.
type GenerationSummary struct {
	GenerationID string  `json:"generation_id"`
	Seed         int64   `json:"seed"`
	StartedNs    int64   `json:"started_ns"`
	FinishedNs   int64   `json:"finished_ns"`
	Width        int32   `json:"width"`
	Height       int32   `json:"height"`
	Turns        int32   `json:"turns"`
	Agents       int32   `json:"agents"`
	Alive        int32   `json:"alive"`
	Fraction     float64 `json:"fraction"`
	Kills        int32   `json:"kills"`
	FoodEaten    int32   `json:"food_eaten"`
	WallsBuilt   int32   `json:"walls_built"`
	Starved      int32   `json:"starved"`
	Source       string  `json:"source"`
	SourceFile   string  `json:"file"`
}

// GenerationsResponse is the paginated response for /api/generations.
type GenerationsResponse struct {
	Total       int64               `json:"total"`
	Generations []GenerationSummary `json:"generations"`
}

// StatsPoint is one time bucket of /api/stats.
type StatsPoint struct {
	TNs          int64   `json:"t_ns"`
	Generations  int64   `json:"generations"`
	MeanSurvival float64 `json:"mean_survival"`
	Kills        int64   `json:"kills"`
	FoodEaten    int64   `json:"food_eaten"`
	Starved      int64   `json:"starved"`
}

type StatsResponse struct {
	FromNs   int64        `json:"from_ns"`
	ToNs     int64        `json:"to_ns"`
	BucketNs int64        `json:"bucket_ns"`
	Points   []StatsPoint `json:"points"`
}

// Point is a board coordinate.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

type Food struct {
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Energy int32  `json:"energy"`
	Kind   string `json:"kind"`
}

type Player struct {
	ID        int32  `json:"id"`
	X         int32  `json:"x"`
	Y         int32  `json:"y"`
	Facing    string `json:"facing"`
	Energy    int32  `json:"energy"`
	Alive     bool   `json:"alive"`
	OnBoard   bool   `json:"on_board"`
	LOS       int32  `json:"los"`
	Attempted string `json:"attempted"`
	Taken     string `json:"taken"`
}

// Tick is one archived turn of a generation.
type Tick struct {
	GenerationID string   `json:"generation_id"`
	Turn         int32    `json:"turn"`
	Width        int32    `json:"width"`
	Height       int32    `json:"height"`
	Food         []Food   `json:"food"`
	Walls        []Point  `json:"walls"`
	Players      []Player `json:"players"`
	Sightings    int32    `json:"sightings"`
	Errors       int32    `json:"errors"`
	Source       string   `json:"source"`
	ModelPath    string   `json:"model_path,omitempty"`
}
