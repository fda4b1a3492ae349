package widgetdata

import (
	"sort"
	"time"
)

//DataPoint is one plotted value, tagged with the serial number of the device that
//reported it
type DataPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	SerialNumber string    `json:"serialNumber"`
	Value        float64   `json:"value"`
}

//Series is the per series block of a widget data response
type Series struct {
	Data         []DataPoint `json:"data"`
	Unit         string      `json:"unit"`
	PropertyName string      `json:"propertyName"`
}

//Table is a row oriented reshaping of a set of series: one row per distinct
//timestamp across all series, each row carrying a "timestamp" key plus one key
//per series that has a value at that instant. Rows are sparse, a series without
//a value at a row's timestamp simply has no key in that row.
type Table struct {
	Rows        []map[string]interface{} `json:"rows"`
	SeriesNames []string                 `json:"seriesNames"`
	Units       map[string]string        `json:"units"`
}

//Normalize reshapes per series point lists into a Table. Rows come out in
//ascending timestamp order and SeriesNames preserves the given order. The
//transform is pure, the same input always yields the same output.
func Normalize(series map[string][]DataPoint, order []string, units map[string]string) Table {
	table := Table{
		Rows:        []map[string]interface{}{},
		SeriesNames: []string{},
		Units:       map[string]string{},
	}

	for _, name := range order {
		if _, ok := series[name]; ok {
			table.SeriesNames = append(table.SeriesNames, name)
			table.Units[name] = units[name]
		}
	}

	stamps := map[int64]time.Time{}
	for _, points := range series {
		for _, point := range points {
			stamps[point.Timestamp.UnixNano()] = point.Timestamp
		}
	}

	keys := make([]int64, 0, len(stamps))
	for key := range stamps {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rowAt := map[int64]map[string]interface{}{}
	for _, key := range keys {
		row := map[string]interface{}{"timestamp": stamps[key]}
		rowAt[key] = row
		table.Rows = append(table.Rows, row)
	}

	for _, name := range table.SeriesNames {
		for _, point := range series[name] {
			rowAt[point.Timestamp.UnixNano()][name] = point.Value
		}
	}

	return table
}
