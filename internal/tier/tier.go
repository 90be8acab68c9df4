package tier

import (
	"fmt"
	"sort"
	"strings"
)

// Tier is a named, inclusive score range with the behavioral effect it drives.
type Tier struct {
	Name   string `json:"name" mapstructure:"name"`
	Min    int    `json:"min" mapstructure:"min"`
	Max    int    `json:"max" mapstructure:"max"`
	Effect string `json:"effect" mapstructure:"effect"`
}

// Contains reports whether level falls inside the tier.
func (t Tier) Contains(level int) bool {
	return t.Min <= level && level <= t.Max
}

// ConfigError reports an invalid tier table or level bounds.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid tier config: " + e.Reason
}

func configErr(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// Table is an immutable, validated set of tiers that exactly tiles
// [MinLevel, MaxLevel]. The zero value is not usable; build one with Load.
type Table struct {
	tiers    []Tier
	minLevel int
	maxLevel int
}

// Load validates definitions and returns a Table. Definitions may arrive in
// any order; they are sorted by Min. Any gap, overlap, empty field or edge
// outside the bounds is a *ConfigError.
func Load(defs []Tier, minLevel, maxLevel int) (*Table, error) {
	if minLevel >= maxLevel {
		return nil, configErr("min level %d must be below max level %d", minLevel, maxLevel)
	}
	if len(defs) == 0 {
		return nil, configErr("no tiers defined")
	}

	tiers := make([]Tier, 0, len(defs))
	for i, d := range defs {
		d.Name = strings.TrimSpace(d.Name)
		d.Effect = strings.TrimSpace(d.Effect)
		if d.Name == "" {
			return nil, configErr("tiers[%d]: name is empty", i)
		}
		if d.Effect == "" {
			return nil, configErr("tiers[%d] (%s): effect is empty", i, d.Name)
		}
		if d.Min > d.Max {
			return nil, configErr("tiers[%d] (%s): min %d > max %d", i, d.Name, d.Min, d.Max)
		}
		tiers = append(tiers, d)
	}

	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Min < tiers[j].Min })

	expected := minLevel
	for _, t := range tiers {
		switch {
		case t.Min < expected:
			if expected == minLevel {
				return nil, configErr("tier %s starts at %d, below min level %d", t.Name, t.Min, minLevel)
			}
			return nil, configErr("tier %s [%d,%d] overlaps the previous tier", t.Name, t.Min, t.Max)
		case t.Min > expected:
			return nil, configErr("gap before tier %s: expected start %d, got %d", t.Name, expected, t.Min)
		}
		expected = t.Max + 1
	}
	if end := expected - 1; end != maxLevel {
		return nil, configErr("tiers end at %d, want max level %d", end, maxLevel)
	}

	return &Table{tiers: tiers, minLevel: minLevel, maxLevel: maxLevel}, nil
}

// MustLoad is Load for static tables known to be valid; it panics otherwise.
func MustLoad(defs []Tier, minLevel, maxLevel int) *Table {
	t, err := Load(defs, minLevel, maxLevel)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the tier containing level. ok is false only when level is
// outside the table bounds.
func (t *Table) Resolve(level int) (Tier, bool) {
	if level < t.minLevel || level > t.maxLevel {
		return Tier{}, false
	}
	i := sort.Search(len(t.tiers), func(i int) bool { return t.tiers[i].Max >= level })
	return t.tiers[i], true
}

// Tiers returns a copy of the tiers ordered by Min.
func (t *Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

func (t *Table) MinLevel() int { return t.minLevel }
func (t *Table) MaxLevel() int { return t.maxLevel }

// Clamp bounds level to the table range.
func (t *Table) Clamp(level int) int {
	return max(t.minLevel, min(t.maxLevel, level))
}
