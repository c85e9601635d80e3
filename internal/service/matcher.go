package service

import (
	"chargeslot/internal/db"
	"chargeslot/internal/entities"
)

// Matcher picks the waitlisted request that should hear about a freed slot.
type Matcher struct{}

// FindMatch returns the first entry in insertion order whose preferences
// cover the freed slot, or nil when nobody qualifies — an expected, common
// outcome, not an error. First qualifying entry wins; there is no secondary
// ranking.
func (Matcher) FindMatch(slot entities.SlotKey, freed entities.TimeRange, entries []db.QueueEntry) *db.QueueEntry {
	for i := range entries {
		e := &entries[i]
		if e.PreferredLocation != slot.Location ||
			e.VehicleType != slot.VehicleType ||
			e.ChargingType != slot.ChargingType {
			continue
		}
		if e.PreferredTime == "" {
			// No preference means any time is acceptable.
			return e
		}
		pref, err := entities.ParseTimeRange(e.PreferredTime)
		if err != nil {
			// A malformed preference can never match; leave the entry queued.
			continue
		}
		if pref.Overlaps(freed) {
			return e
		}
	}
	return nil
}
