package models

import "encoding/json"

//SeriesSpec names one configured series on a widget: which telemetry property to
//plot, under which display name, and how it is unit tagged
type SeriesSpec struct {
	Name        string `json:"displayName"`
	PropertyKey string `json:"propertyName"`
	Unit        string `json:"unit"`
	DataType    string `json:"dataType"`
}

//DataSourceConfig is the declarative data source configuration stored on a widget.
//Widget behavior is entirely data, one generic fetch routine consumes this record.
type DataSourceConfig struct {
	DeviceTypeID uint         `json:"deviceTypeId"`
	Series       []SeriesSpec `json:"series"`
}

//ParseDataSourceConfig unmarshals the configuration document stored on a widget row
func ParseDataSourceConfig(raw string) (DataSourceConfig, error) {
	config := DataSourceConfig{}
	err := json.Unmarshal([]byte(raw), &config)
	return config, err
}
