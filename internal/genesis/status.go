package genesis

import "strconv"

// StatusRegister holds the controller's current operational demand.
const StatusRegister = "input_first_prioritised_demand"

// Operational status codes reported by StatusRegister.
const (
	StatusOff            = 0
	StatusStandby        = 1
	StatusStartUp        = 2
	StatusHeating        = 3
	StatusTapWater       = 4
	StatusPool           = 5
	StatusActiveCooling  = 6
	StatusPassiveCooling = 7
	StatusDefrost        = 8
	StatusAlarm          = 9
)

var statusLabels = map[int]string{
	StatusOff:            "Off",
	StatusStandby:        "Standby",
	StatusStartUp:        "Start-up",
	StatusHeating:        "Heating",
	StatusTapWater:       "Tap water",
	StatusPool:           "Pool",
	StatusActiveCooling:  "Active cooling",
	StatusPassiveCooling: "Passive cooling",
	StatusDefrost:        "Defrost",
	StatusAlarm:          "Alarm",
}

// StatusLabel returns a readable label for an operational status code.
// Unknown codes are rendered as "Unknown (<code>)".
func StatusLabel(code int) string {
	if l, ok := statusLabels[code]; ok {
		return l
	}
	return "Unknown (" + strconv.Itoa(code) + ")"
}
