package aggregate

import (
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/agristat/internal/factstore"
)

// EvolutionRow is the summed volume of one sub-sector in one year.
type EvolutionRow struct {
	Year     int     `json:"year"`
	Sector   string  `json:"sector"`
	Category string  `json:"category"`
	Volume   float64 `json:"volume"`
}

// YearPoint pivots the rows of one year into sector name -> volume.
type YearPoint struct {
	Year    int                `json:"year"`
	Volumes map[string]float64 `json:"volumes"`
}

// Evolution is a time series over a subtree scope.
type Evolution struct {
	Rows []EvolutionRow `json:"rows"`
	// Categories maps each sector name to its upper-cased category.
	Categories map[string]string `json:"categories"`
	Series     []YearPoint       `json:"series"`
	// Sectors lists sector names in first-seen order.
	Sectors []string `json:"sectors"`
}

// Evolution groups the subtree facts of zoneID by (year, sub-sector) within
// years and sums volumes. Rows come out in ascending year order; within a
// year they keep scan order.
func (e *Engine) Evolution(zoneID int64, years factstore.YearRange) (*Evolution, error) {
	defer observe("evolution", time.Now())

	if err := years.Validate(); err != nil {
		return nil, err
	}
	codes, err := e.index.DescendantCodes(zoneID)
	if err != nil {
		return nil, err
	}
	seq, err := e.facts.Query(factstore.Filter{Codes: codes, Years: &years})
	if err != nil {
		return nil, err
	}
	scopeSize.Observe(float64(len(codes)))

	type key struct {
		year        int
		subSectorID int64
	}
	pos := make(map[key]int)
	var rows []EvolutionRow
	for f := range seq {
		k := key{f.Year, f.SubSectorID}
		i, ok := pos[k]
		if !ok {
			i = len(rows)
			pos[k] = i
			rows = append(rows, EvolutionRow{
				Year:     f.Year,
				Sector:   e.subSectorName(f.SubSectorID),
				Category: e.catalog.Category(f.SubSectorID),
			})
		}
		rows[i].Volume += f.Volume
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Year < rows[j].Year })

	upper := cases.Upper(language.Und)
	out := &Evolution{Rows: rows, Categories: make(map[string]string)}
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.Sector] {
			seen[r.Sector] = true
			out.Sectors = append(out.Sectors, r.Sector)
			out.Categories[r.Sector] = upper.String(r.Category)
		}
		n := len(out.Series)
		if n == 0 || out.Series[n-1].Year != r.Year {
			out.Series = append(out.Series, YearPoint{Year: r.Year, Volumes: make(map[string]float64)})
			n++
		}
		out.Series[n-1].Volumes[r.Sector] += r.Volume
	}
	return out, nil
}
