package common

import "strings"

// Sensor identifies a Landsat mission ("L5", "L7", "L8", "L9").
type Sensor string

const (
	L5 Sensor = "L5"
	L7 Sensor = "L7"
	L8 Sensor = "L8"
	L9 Sensor = "L9"
)

// Dataset returns the M2M Collection 2 Level-2 dataset name of the sensor, or
// "" for an unknown sensor.
func (s Sensor) Dataset() string {
	switch s {
	case L8, L9:
		return "landsat_ot_c2_l2"
	case L7:
		return "landsat_etm_c2_l2"
	case L5:
		return "landsat_tm_c2_l2"
	}
	return ""
}

// Bands returns the spectral bands of the sensor.
func (s Sensor) Bands() []string {
	switch s {
	case L8, L9:
		return []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8", "B9", "B10", "B11"}
	case L7:
		return []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8"}
	case L5:
		return []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7"}
	}
	return nil
}

// HasBand returns true if the band belongs to the sensor band catalog
func (s Sensor) HasBand(band string) bool {
	for _, b := range s.Bands() {
		if strings.EqualFold(b, band) {
			return true
		}
	}
	return false
}

// SensorFromString parses a user-provided sensor identifier
func SensorFromString(s string) (Sensor, bool) {
	switch sensor := Sensor(strings.ToUpper(strings.TrimSpace(s))); sensor {
	case L5, L7, L8, L9:
		return sensor, true
	default:
		return "", false
	}
}

// SensorFromDisplayID guesses the sensor from a scene display id
// (e.g. LC08_L2SP_042034_20220104_20220113_02_T1 -> L8)
func SensorFromDisplayID(displayID string) (Sensor, bool) {
	if len(displayID) < 4 {
		return "", false
	}
	switch displayID[:4] {
	case "LC08", "LO08", "LT08":
		return L8, true
	case "LC09", "LO09", "LT09":
		return L9, true
	case "LE07":
		return L7, true
	case "LT05":
		return L5, true
	}
	return "", false
}
