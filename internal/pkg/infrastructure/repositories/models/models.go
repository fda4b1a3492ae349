package models

import (
	"time"

	"gorm.io/gorm"
)

//HierarchyNode is a single element in the organizational tree (region, area, field, well).
//A nil ParentID marks a root, so the table as a whole forms a forest.
type HierarchyNode struct {
	gorm.Model
	ParentID *uint `gorm:"index:nodes_by_parent"`
	Name     string
	Level    string
}

//DeviceType is a category of equipment defining which telemetry properties it reports
type DeviceType struct {
	gorm.Model
	Name string `gorm:"unique"`
}

//DeviceTypeProperty declares one telemetry field that devices of a type report,
//together with how the UI should label it
type DeviceTypeProperty struct {
	gorm.Model
	DeviceTypeID uint   `gorm:"index:props_by_type;uniqueIndex:prop_key_per_type"`
	PropertyKey  string `gorm:"uniqueIndex:prop_key_per_type"`
	DisplayName  string
	Unit         string
	DataType     string
	SortOrder    int
}

//Device is the database model for a piece of field equipment. CompanyID is the
//multi-tenancy boundary and is checked on every query that returns device data.
type Device struct {
	gorm.Model
	CompanyID       uint `gorm:"index:devices_by_company"`
	DeviceTypeID    uint
	HierarchyNodeID *uint  `gorm:"index:devices_by_node"`
	SerialNumber    string `gorm:"unique"`
	Metadata        string
}

//Widget stores a dashboard widget definition. DataSourceConfig holds the declarative
//series configuration as a JSON document, see DataSourceConfig in this package.
type Widget struct {
	gorm.Model
	Name             string
	WidgetType       string
	DataSourceConfig string
}

//TelemetrySample stores one timestamped reading from a device. Payload is a JSON
//object mapping property keys to reported values. Samples are append-only.
type TelemetrySample struct {
	gorm.Model
	DeviceID  uint      `gorm:"index:samples_by_device"`
	Timestamp time.Time `gorm:"index:samples_by_time"`
	Payload   string
}
