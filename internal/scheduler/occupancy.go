package scheduler

import "sort"

// MaxCapacity is the number of reservations a single slot can hold.
const MaxCapacity = 2

// Occupancy counts reservations per slot ID.
type Occupancy map[string]int

// CountBySlot builds an Occupancy from the slot ID of each reservation.
func CountBySlot(slotIDs []string) Occupancy {
	occ := make(Occupancy, len(slotIDs))
	for _, id := range slotIDs {
		occ[id]++
	}
	return occ
}

// Reserved returns the number of reservations held by slotID.
func (o Occupancy) Reserved(slotID string) int {
	return o[slotID]
}

// HasRoom reports whether one more reservation fits in slotID.
func (o Occupancy) HasRoom(slotID string) bool {
	return o[slotID] < MaxCapacity
}

// IsFull reports whether slotID is at or above capacity.
func IsFull(reserved int) bool {
	return reserved >= MaxCapacity
}

// Overbooked returns the slot IDs holding more than MaxCapacity reservations, sorted.
func (o Occupancy) Overbooked() []string {
	var ids []string
	for id, n := range o {
		if n > MaxCapacity {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Less orders (date, start) pairs chronologically. Both layouts sort lexically.
func Less(dateA, startA, dateB, startB string) bool {
	if dateA != dateB {
		return dateA < dateB
	}
	return startA < startB
}
