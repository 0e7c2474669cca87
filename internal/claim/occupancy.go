package claim

import (
	"fmt"
	"strconv"
	"strings"
)

// Occupancy is a slot's "joined/capacity" counter.
type Occupancy struct {
	Joined   int
	Capacity int
}

func (o Occupancy) Full() bool { return o.Joined >= o.Capacity }

func (o Occupancy) String() string { return fmt.Sprintf("%d/%d", o.Joined, o.Capacity) }

// ParseOccupancy reads text such as " 12 / 30 ".
func ParseOccupancy(s string) (Occupancy, error) {
	joined, capacity, ok := strings.Cut(s, "/")
	if !ok {
		return Occupancy{}, fmt.Errorf("occupancy %q: missing '/'", s)
	}
	j, err := strconv.Atoi(strings.TrimSpace(joined))
	if err != nil {
		return Occupancy{}, fmt.Errorf("occupancy %q: joined: %w", s, err)
	}
	c, err := strconv.Atoi(strings.TrimSpace(capacity))
	if err != nil {
		return Occupancy{}, fmt.Errorf("occupancy %q: capacity: %w", s, err)
	}
	if j < 0 || c < 0 {
		return Occupancy{}, fmt.Errorf("occupancy %q: negative count", s)
	}
	return Occupancy{Joined: j, Capacity: c}, nil
}
