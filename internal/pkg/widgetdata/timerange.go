package widgetdata

import "time"

//TimeRangeWindow maps a time range name from the fixed enumeration to a window
//length. An unrecognized value yields 0, meaning no time restriction at all; the
//row cap still applies in that case.
func TimeRangeWindow(timeRange string) time.Duration {
	switch timeRange {
	case "1h":
		return time.Hour
	case "6h":
		return 6 * time.Hour
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	}

	return 0
}
