package curve

// Curve is a 7 point setpoint heat curve. Point 0 is the supply setpoint at
// the highest outdoor temperature, point 6 at the lowest, matching how the
// pumps expose it over modbus.
type Curve [7]float64

// Breakpoints are the outdoor temperatures the curve points belong to.
var Breakpoints = [7]float64{20, 10, 0, -10, -20, -30, -40}

// Setpoint returns the supply line setpoint for an outdoor temperature by
// linear interpolation between curve points, clamped at both ends. adjust is
// a parallel offset on the whole curve.
func Setpoint(c Curve, adjust float64, outdoor float64) float64 {
	if outdoor >= Breakpoints[0] {
		return c[0] + adjust
	}
	if outdoor <= Breakpoints[len(Breakpoints)-1] {
		return c[len(c)-1] + adjust
	}
	for i := 1; i < len(Breakpoints); i++ {
		if outdoor >= Breakpoints[i] {
			span := Breakpoints[i-1] - Breakpoints[i]
			frac := (Breakpoints[i-1] - outdoor) / span
			return c[i-1] + (c[i]-c[i-1])*frac + adjust
		}
	}
	return c[len(c)-1] + adjust
}

// Compensated applies the learned performance factor as a multiplier on the
// weather compensation slope around the room base temperature.
func Compensated(c Curve, adjust float64, factor float64, outdoor float64, roomBase float64) float64 {
	return roomBase + factor*(Setpoint(c, adjust, outdoor)-roomBase)
}

// SeasonActive reports whether the seasonal heating mode should be on given
// the daily outdoor mean and the configured season stop temperature.
func SeasonActive(outdoorDailyMean, stopTemperature float64) bool {
	return outdoorDailyMean < stopTemperature
}
