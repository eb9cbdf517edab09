// internal/models/combination.go
package models

import (
	"fmt"
	"slices"
	"strings"
)

// Combination books several grounds of one pitch as a single unit.
type Combination struct {
	ID        int64   `json:"id"`
	PitchID   int64   `json:"pitchId"`
	Name      string  `json:"name"`
	GroundIDs []int64 `json:"groundIds"`
}

// NormalizeGroundIDs drops duplicates and sorts ascending.
func NormalizeGroundIDs(ids []int64) []int64 {
	normalized := slices.Clone(ids)
	slices.Sort(normalized)
	return slices.Compact(normalized)
}

func (c Combination) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if c.PitchID <= 0 {
		return fmt.Errorf("pitch_id must be a positive integer")
	}
	for _, id := range c.GroundIDs {
		if id <= 0 {
			return fmt.Errorf("ground_ids must contain only positive integers")
		}
	}
	if len(NormalizeGroundIDs(c.GroundIDs)) < 2 {
		return fmt.Errorf("a combination needs at least 2 distinct grounds")
	}
	return nil
}
