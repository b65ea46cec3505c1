package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DBCache maintains a cached DuckDB connection that refreshes periodically.
type DBCache struct {
	roots       []string
	refreshRate time.Duration

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time

	// Cached generations index for fast pagination
	index []GenerationSummary
}

func NewDBCache(roots []string, refreshRate time.Duration) *DBCache {
	return &DBCache{
		roots:       roots,
		refreshRate: refreshRate,
	}
}

// Get returns the cached DB connection, refreshing if needed.
func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}
	return c.refreshLocked()
}

// Refresh forces a refresh of the cached DB connection.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked()
	return err
}

func (c *DBCache) refreshLocked() (*sql.DB, error) {
	start := time.Now()

	newDB, err := openDuckDBForRoots(c.roots)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}

	c.db = newDB
	c.lastRefresh = time.Now()
	c.index = nil

	log.Printf("DBCache refreshed in %v", time.Since(start))
	return c.db, nil
}

// GetGenerationsIndex returns the cached generations index, rebuilding it
// after a refresh.
func (c *DBCache) GetGenerationsIndex(ctx context.Context) ([]GenerationSummary, error) {
	c.mu.RLock()
	if c.index != nil && c.db != nil {
		idx := c.index
		c.mu.RUnlock()
		return idx, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index != nil && c.db != nil {
		return c.index, nil
	}
	if c.db == nil {
		if _, err := c.refreshLocked(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	gens, err := queryAllGenerations(ctx, c.db, c.roots)
	if err != nil {
		return nil, err
	}
	c.index = gens
	log.Printf("Generations index rebuilt: %d generations in %v", len(gens), time.Since(start))
	return c.index, nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// openDuckDBForRoots creates the ticks and generations views over every
// finished parquet file under roots.
func openDuckDBForRoots(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	// Basic pragmas; ignore errors for compatibility across versions.
	_, _ = db.Exec("PRAGMA threads=4")

	views := []struct {
		name   string
		prefix string
		empty  string
	}{
		{"ticks", "ticks_", emptyTicksView},
		{"generations", "generations_", emptyGenerationsView},
	}
	for _, v := range views {
		sqlText := v.empty
		if files := findParquetFiles(roots, v.prefix); len(files) > 0 {
			quoted := make([]string, 0, len(files))
			for _, f := range files {
				quoted = append(quoted, "'"+escapeSQLString(f)+"'")
			}
			// union_by_name tolerates files written before a column was added.
			sqlText = `CREATE OR REPLACE VIEW ` + v.name + ` AS
				SELECT * FROM read_parquet([` + strings.Join(quoted, ",") + `], filename=true, union_by_name=true)`
		}
		if _, err := db.Exec(sqlText); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// findParquetFiles lists finished files named prefix*.parquet under roots.
// Files still being written live in tmp directories and are skipped.
func findParquetFiles(roots []string, prefix string) []string {
	var out []string
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if d.Name() == "tmp" && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".parquet") {
				out = append(out, path)
			}
			return nil
		})
	}
	sort.Strings(out)
	return out
}

const emptyTicksView = `CREATE OR REPLACE VIEW ticks AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS generation_id,
			NULL::INTEGER AS turn,
			NULL::INTEGER AS width,
			NULL::INTEGER AS height,
			NULL::INTEGER[] AS food_x,
			NULL::INTEGER[] AS food_y,
			NULL::INTEGER[] AS food_energy,
			NULL::VARCHAR[] AS food_kind,
			NULL::INTEGER[] AS wall_x,
			NULL::INTEGER[] AS wall_y,
			NULL::STRUCT(
				id INTEGER,
				x INTEGER,
				y INTEGER,
				facing VARCHAR,
				energy INTEGER,
				alive BOOLEAN,
				on_board BOOLEAN,
				los INTEGER,
				attempted VARCHAR,
				taken VARCHAR
			)[] AS players,
			NULL::INTEGER AS sightings,
			NULL::INTEGER AS errors,
			NULL::VARCHAR AS source,
			NULL::VARCHAR AS model_path,
			NULL::VARCHAR AS filename
	) WHERE 1=0`

const emptyGenerationsView = `CREATE OR REPLACE VIEW generations AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS generation_id,
			NULL::BIGINT AS seed,
			NULL::INTEGER AS width,
			NULL::INTEGER AS height,
			NULL::INTEGER AS turns,
			NULL::INTEGER AS agents,
			NULL::INTEGER AS alive,
			NULL::DOUBLE AS fraction,
			NULL::INTEGER AS kills,
			NULL::INTEGER AS food_eaten,
			NULL::INTEGER AS walls_built,
			NULL::INTEGER AS starved,
			NULL::BIGINT AS started_ns,
			NULL::BIGINT AS finished_ns,
			NULL::VARCHAR AS source,
			NULL::VARCHAR AS filename
	) WHERE 1=0`

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func normalizeSort(sortKey string, sortDir string) (string, string) {
	sk := strings.ToLower(strings.TrimSpace(sortKey))
	sd := strings.ToLower(strings.TrimSpace(sortDir))
	if sd != "asc" && sd != "desc" {
		sd = "desc"
	}
	switch sk {
	case "time", "started", "started_ns":
		sk = "started_ns"
	case "id", "generation", "generation_id":
		sk = "generation_id"
	case "turns":
		sk = "turns"
	case "alive":
		sk = "alive"
	case "survival", "fraction":
		sk = "fraction"
	case "kills":
		sk = "kills"
	case "source":
		sk = "source"
	default:
		sk = "started_ns"
		sd = "desc"
	}
	return sk, sd
}

func makeRelativeToRoots(filename string, roots []string) string {
	fn := strings.TrimSpace(filename)
	if fn == "" {
		return ""
	}
	best := fn
	bestLen := len(best)
	for _, r := range roots {
		root := strings.TrimSpace(r)
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(root, fn)
		if err != nil {
			continue
		}
		// Ignore paths that escape the root.
		if strings.HasPrefix(rel, "..") {
			continue
		}
		cand := filepath.ToSlash(filepath.Join(root, rel))
		if len(cand) < bestLen {
			best = cand
			bestLen = len(cand)
		}
	}
	return best
}

// queryAllGenerations loads every generation summary, newest first.
func queryAllGenerations(ctx context.Context, db *sql.DB, roots []string) ([]GenerationSummary, error) {
	rows, err := db.QueryContext(ctx, `SELECT
			generation_id,
			seed::BIGINT,
			started_ns::BIGINT,
			finished_ns::BIGINT,
			width::INTEGER,
			height::INTEGER,
			turns::INTEGER,
			agents::INTEGER,
			alive::INTEGER,
			fraction::DOUBLE,
			kills::INTEGER,
			food_eaten::INTEGER,
			walls_built::INTEGER,
			starved::INTEGER,
			COALESCE(source, '')::VARCHAR,
			filename::VARCHAR
		FROM generations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GenerationSummary, 0, 1024)
	seen := make(map[string]bool)
	for rows.Next() {
		var g GenerationSummary
		var file string
		if err := rows.Scan(&g.GenerationID, &g.Seed, &g.StartedNs, &g.FinishedNs, &g.Width, &g.Height,
			&g.Turns, &g.Agents, &g.Alive, &g.Fraction, &g.Kills, &g.FoodEaten, &g.WallsBuilt, &g.Starved,
			&g.Source, &file); err != nil {
			return nil, err
		}
		if seen[g.GenerationID] {
			continue
		}
		seen[g.GenerationID] = true
		g.SourceFile = makeRelativeToRoots(file, roots)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedNs != out[j].StartedNs {
			return out[i].StartedNs > out[j].StartedNs
		}
		return out[i].GenerationID > out[j].GenerationID
	})
	return out, nil
}

// paginateGenerations sorts and paginates the index in memory.
func paginateGenerations(gens []GenerationSummary, limit, offset int, sortKey, sortDir string) []GenerationSummary {
	sk, sd := normalizeSort(sortKey, sortDir)

	sorted := make([]GenerationSummary, len(gens))
	copy(sorted, gens)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		var less, equal bool
		switch sk {
		case "generation_id":
			less, equal = a.GenerationID < b.GenerationID, a.GenerationID == b.GenerationID
		case "turns":
			less, equal = a.Turns < b.Turns, a.Turns == b.Turns
		case "alive":
			less, equal = a.Alive < b.Alive, a.Alive == b.Alive
		case "fraction":
			less, equal = a.Fraction < b.Fraction, a.Fraction == b.Fraction
		case "kills":
			less, equal = a.Kills < b.Kills, a.Kills == b.Kills
		case "source":
			less, equal = a.Source < b.Source, a.Source == b.Source
		default:
			less, equal = a.StartedNs < b.StartedNs, a.StartedNs == b.StartedNs
		}
		if equal {
			return false
		}
		if sd == "desc" {
			return !less
		}
		return less
	})

	if offset >= len(sorted) {
		return []GenerationSummary{}
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end]
}

func queryStats(ctx context.Context, db *sql.DB, fromNs int64, toNs int64, bucketNs int64) ([]StatsPoint, error) {
	rows, err := db.QueryContext(ctx, `SELECT
			(? + floor((started_ns - ?)::DOUBLE / ?::DOUBLE) * ?)::BIGINT AS bucket_start_ns,
			COUNT(*)::BIGINT,
			AVG(fraction)::DOUBLE,
			SUM(kills)::BIGINT,
			SUM(food_eaten)::BIGINT,
			SUM(starved)::BIGINT
		FROM generations
		WHERE started_ns >= ? AND started_ns <= ?
		GROUP BY bucket_start_ns
		ORDER BY bucket_start_ns ASC`,
		fromNs, fromNs, bucketNs, bucketNs, fromNs, toNs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]StatsPoint, 0, 256)
	for rows.Next() {
		var p StatsPoint
		if err := rows.Scan(&p.TNs, &p.Generations, &p.MeanSurvival, &p.Kills, &p.FoodEaten, &p.Starved); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

const tickColumns = `generation_id, turn::INTEGER, width::INTEGER, height::INTEGER,
	food_x, food_y, food_energy, food_kind, wall_x, wall_y, players,
	sightings::INTEGER, errors::INTEGER, source, COALESCE(model_path, '') AS model_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTick(r rowScanner) (Tick, error) {
	var t Tick
	var foodX, foodY, foodEnergy, foodKind, wallX, wallY, players any
	if err := r.Scan(&t.GenerationID, &t.Turn, &t.Width, &t.Height,
		&foodX, &foodY, &foodEnergy, &foodKind, &wallX, &wallY, &players,
		&t.Sightings, &t.Errors, &t.Source, &t.ModelPath); err != nil {
		return Tick{}, err
	}
	t.Food = zipFood(asInt32Slice(foodX), asInt32Slice(foodY), asInt32Slice(foodEnergy), asStringSlice(foodKind))
	t.Walls = zipPoints(asInt32Slice(wallX), asInt32Slice(wallY))
	t.Players = asPlayers(players)
	return t, nil
}

func queryTicks(ctx context.Context, db *sql.DB, generationID string) ([]Tick, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+tickColumns+`
		 FROM ticks
		 WHERE generation_id = ?
		 ORDER BY turn ASC`, generationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ticks := make([]Tick, 0, 256)
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ticks, nil
}

func queryTick(ctx context.Context, db *sql.DB, generationID string, turn int32) (Tick, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+tickColumns+`
		 FROM ticks
		 WHERE generation_id = ? AND turn = ?
		 LIMIT 1`, generationID, turn)
	return scanTick(row)
}
