package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Level is a tier of the administrative hierarchy.
type Level string

const (
	LevelCountry        Level = "COUNTRY"
	LevelRegion         Level = "REGION"
	LevelDepartement    Level = "DEPARTEMENT"
	LevelArrondissement Level = "ARRONDISSEMENT"
)

// Levels lists every level from the root down.
var Levels = []Level{LevelCountry, LevelRegion, LevelDepartement, LevelArrondissement}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if l.Depth() < 0 {
		return "", eris.Wrapf(ErrInvalidFilter, "model: unknown level %q", s)
	}
	return l, nil
}

// Depth returns 0 for COUNTRY through 3 for ARRONDISSEMENT, or -1 when the
// level is not recognised.
func (l Level) Depth() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the four known levels.
func (l Level) Valid() bool { return l.Depth() >= 0 }

// Child returns the level directly below l.
func (l Level) Child() (Level, bool) {
	d := l.Depth()
	if d < 0 || d+1 >= len(Levels) {
		return "", false
	}
	return Levels[d+1], true
}

// Parent returns the level directly above l.
func (l Level) Parent() (Level, bool) {
	d := l.Depth()
	if d <= 0 {
		return "", false
	}
	return Levels[d-1], true
}

// Zone is one node of the administrative hierarchy. Geometry holds WKB bytes
// and is never inspected by the aggregation code.
type Zone struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Level    Level  `json:"level" yaml:"level"`
	Code     string `json:"code" yaml:"code"`
	ParentID *int64 `json:"parent_id" yaml:"parent_id"`
	Geometry []byte `json:"-" yaml:"-"`
}

// IsRoot reports whether the zone has no parent.
func (z Zone) IsRoot() bool { return z.ParentID == nil }
