package entities

import (
	"fmt"
	"strings"

	apperrors "chargeslot/internal/errors"
)

const (
	VehicleTwoWheeler  = "two-wheeler"
	VehicleFourWheeler = "four-wheeler"

	ChargingAC = "AC"
	ChargingDC = "DC"
)

// VehicleTypes and ChargingTypes enumerate the grid dimensions in the order
// they are bootstrapped.
func VehicleTypes() []string { return []string{VehicleTwoWheeler, VehicleFourWheeler} }
func ChargingTypes() []string { return []string{ChargingAC, ChargingDC} }

// GridHours returns the 24 zero-padded hour labels of a day.
func GridHours() []string {
	hours := make([]string, 24)
	for i := range hours {
		hours[i] = fmt.Sprintf("%02d:00", i)
	}
	return hours
}

// SlotKey identifies one bookable unit of the availability grid.
type SlotKey struct {
	Location     string
	VehicleType  string
	ChargingType string
	Hour         string // "HH:00"
}

// NewSlotKey validates the enum dimensions and derives the hour label from
// the booking range's starting hour. Unknown locations are not rejected
// here: the grid lookup answers Unknown for those.
func NewSlotKey(location, vehicleType, chargingType string, rng TimeRange) (SlotKey, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return SlotKey{}, apperrors.InvalidInputf("location is required")
	}
	if vehicleType != VehicleTwoWheeler && vehicleType != VehicleFourWheeler {
		return SlotKey{}, apperrors.InvalidInputf("unknown vehicle type %q", vehicleType)
	}
	if chargingType != ChargingAC && chargingType != ChargingDC {
		return SlotKey{}, apperrors.InvalidInputf("unknown charging type %q", chargingType)
	}
	return SlotKey{
		Location:     location,
		VehicleType:  vehicleType,
		ChargingType: chargingType,
		Hour:         rng.Hour(),
	}, nil
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Location, k.VehicleType, k.ChargingType, k.Hour)
}
