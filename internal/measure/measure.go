// Package measure turns raw location-stream readings into display strings.
package measure

import (
	"strconv"

	"github.com/OCAP2/mapview/pkg/core"
)

// Units for each measurement field.
const (
	UnitMetres          = "m"
	UnitRadians         = "rad"
	UnitMetresPerSecond = "m/s"
)

// Format normalizes a sample. Absent readings become "", present ones
// (zero included) become "<value> [<unit>]".
func Format(sample core.MeasurementSample) core.MeasurementResult {
	return core.MeasurementResult{
		Accuracy:         formatValue(sample.Accuracy, UnitMetres),
		Altitude:         formatValue(sample.Altitude, UnitMetres),
		AltitudeAccuracy: formatValue(sample.AltitudeAccuracy, UnitMetres),
		Heading:          formatValue(sample.Heading, UnitRadians),
		Speed:            formatValue(sample.Speed, UnitMetresPerSecond),
	}
}

func formatValue(v core.Optional[float64], unit string) string {
	f, ok := v.Get()
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64) + " [" + unit + "]"
}
