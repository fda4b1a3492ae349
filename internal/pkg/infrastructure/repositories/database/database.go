package database

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/logging"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/repositories/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//ErrNotFound is returned when a requested record does not exist in the database
var ErrNotFound = errors.New("record not found")

//TelemetryQuery describes one scoped range query against the telemetry samples.
//A nil NodeIDs leaves the hierarchy unrestricted; a non-nil but empty NodeIDs
//matches no device at all. A non-nil DeviceID restricts to that single device id,
//whatever it is; an id that no device carries matches nothing. DeviceID is only
//honored when NodeIDs is nil.
type TelemetryQuery struct {
	CompanyID    uint
	DeviceTypeID uint
	PropertyKey  string
	NodeIDs      []uint
	DeviceID     *uint
	From         time.Time
	Limit        int
}

//ScopedSample is one telemetry row returned by GetTelemetrySamples, joined with
//the serial number of the device that reported it
type ScopedSample struct {
	Timestamp    time.Time
	SerialNumber string
	Payload      string
}

//Datastore is an interface that is used to inject the database into different handlers to improve testability
type Datastore interface {
	CreateHierarchyNode(node *models.HierarchyNode) (*models.HierarchyNode, error)
	CreateDeviceType(deviceType *models.DeviceType) (*models.DeviceType, error)
	CreateDeviceTypeProperty(property *models.DeviceTypeProperty) (*models.DeviceTypeProperty, error)
	CreateDevice(device *models.Device) (*models.Device, error)
	CreateWidget(widget *models.Widget) (*models.Widget, error)
	CreateTelemetrySample(sample *models.TelemetrySample) (*models.TelemetrySample, error)

	GetWidgetFromID(id uint) (*models.Widget, error)
	GetDeviceFromID(id uint) (*models.Device, error)
	GetDeviceTypeProperties(deviceTypeID uint) ([]models.DeviceTypeProperty, error)
	GetHierarchySubtree(rootID int64) ([]uint, error)
	GetTelemetrySamples(query TelemetryQuery) ([]ScopedSample, error)
}

type myDB struct {
	impl *gorm.DB

	payloadContains string
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

//NewPostgreSQLConnector opens a connection to a postgresql database
func NewPostgreSQLConnector(log logging.Logger) ConnectorFunc {
	dbHost := os.Getenv("DASHBOARD_DB_HOST")
	username := os.Getenv("DASHBOARD_DB_USER")
	dbName := os.Getenv("DASHBOARD_DB_NAME")
	password := os.Getenv("DASHBOARD_DB_PASSWORD")
	sslMode := getEnv("DASHBOARD_DB_SSLMODE", "require")

	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", dbHost, username, dbName, sslMode, password)

	return func() (*gorm.DB, error) {
		log.Infof("Connecting to database host %s ...\n", dbHost)
		db, err := gorm.Open(postgres.Open(dbURI), &gorm.Config{})
		if err != nil {
			log.Errorf("Failed to connect to database %s\n", err)
			return nil, err
		}

		return db, nil
	}
}

//NewSQLiteConnector opens a connection to a local sqlite database
func NewSQLiteConnector() ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}

		return db, err
	}
}

//NewDatabaseConnection initializes a new connection to the database and wraps it in a Datastore
func NewDatabaseConnection(connect ConnectorFunc, log logging.Logger) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	db := &myDB{
		impl: impl,
	}

	// The payload containment predicate has no portable spelling, so it is picked
	// per dialect. A sample contributes to a series only if its payload carries
	// the series' property key; a missing key is absent, not zero.
	if impl.Dialector.Name() == "postgres" {
		db.payloadContains = "telemetry_samples.payload::jsonb ->> ? IS NOT NULL"
	} else {
		db.payloadContains = "json_extract(telemetry_samples.payload, '$.' || ?) IS NOT NULL"
	}

	db.impl.AutoMigrate(&models.HierarchyNode{})
	db.impl.AutoMigrate(&models.DeviceType{})
	db.impl.AutoMigrate(&models.DeviceTypeProperty{})
	db.impl.AutoMigrate(&models.Device{})
	db.impl.AutoMigrate(&models.Widget{})
	db.impl.AutoMigrate(&models.TelemetrySample{})

	return db, nil
}

func (db *myDB) CreateHierarchyNode(node *models.HierarchyNode) (*models.HierarchyNode, error) {
	if node.ParentID != nil {
		parent := &models.HierarchyNode{}
		result := db.impl.Where("id = ?", *node.ParentID).First(parent)
		if result.RowsAffected == 0 {
			return nil, fmt.Errorf("no parent node found with id %d", *node.ParentID)
		}
	}

	if err := db.impl.Create(node).Error; err != nil {
		return nil, err
	}

	return node, nil
}

func (db *myDB) CreateDeviceType(deviceType *models.DeviceType) (*models.DeviceType, error) {
	if err := db.impl.Create(deviceType).Error; err != nil {
		return nil, err
	}

	return deviceType, nil
}

func (db *myDB) CreateDeviceTypeProperty(property *models.DeviceTypeProperty) (*models.DeviceTypeProperty, error) {
	if property.PropertyKey == "" {
		return nil, fmt.Errorf("CreateDeviceTypeProperty requires a non-empty property key")
	}

	if err := db.impl.Create(property).Error; err != nil {
		return nil, err
	}

	return property, nil
}

func (db *myDB) CreateDevice(device *models.Device) (*models.Device, error) {
	if device.DeviceTypeID == 0 {
		return nil, fmt.Errorf("CreateDevice requires a non-empty device type")
	}

	deviceType := &models.DeviceType{}
	result := db.impl.Where("id = ?", device.DeviceTypeID).First(deviceType)
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("no device type found with id %d", device.DeviceTypeID)
	}

	if err := db.impl.Create(device).Error; err != nil {
		return nil, err
	}

	return device, nil
}

//CreateWidget stores a widget definition. Every configured series must name a
//property that is declared for the widget's device type; the check and the insert
//run inside one transaction so a widget row never lands without having passed it.
func (db *myDB) CreateWidget(widget *models.Widget) (*models.Widget, error) {
	config, err := models.ParseDataSourceConfig(widget.DataSourceConfig)
	if err != nil {
		return nil, fmt.Errorf("widget data source config is not valid JSON: %w", err)
	}

	err = db.impl.Transaction(func(tx *gorm.DB) error {
		declared := []models.DeviceTypeProperty{}
		if err := tx.Where("device_type_id = ?", config.DeviceTypeID).Find(&declared).Error; err != nil {
			return err
		}

		for _, series := range config.Series {
			if !declaresPropertyKey(declared, series.PropertyKey) {
				return fmt.Errorf("property %s is not declared for device type %d", series.PropertyKey, config.DeviceTypeID)
			}
		}

		return tx.Create(widget).Error
	})

	if err != nil {
		return nil, err
	}

	return widget, nil
}

func declaresPropertyKey(declared []models.DeviceTypeProperty, key string) bool {
	for _, property := range declared {
		if property.PropertyKey == key {
			return true
		}
	}

	return false
}

func (db *myDB) CreateTelemetrySample(sample *models.TelemetrySample) (*models.TelemetrySample, error) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	if err := db.impl.Create(sample).Error; err != nil {
		return nil, err
	}

	return sample, nil
}

func (db *myDB) GetWidgetFromID(id uint) (*models.Widget, error) {
	widget := &models.Widget{}
	result := db.impl.First(widget, id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if result.Error != nil {
		return nil, result.Error
	}

	return widget, nil
}

func (db *myDB) GetDeviceFromID(id uint) (*models.Device, error) {
	device := &models.Device{}
	result := db.impl.First(device, id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if result.Error != nil {
		return nil, result.Error
	}

	return device, nil
}

func (db *myDB) GetDeviceTypeProperties(deviceTypeID uint) ([]models.DeviceTypeProperty, error) {
	properties := []models.DeviceTypeProperty{}

	err := db.impl.Where("device_type_id = ?", deviceTypeID).Order("sort_order asc").Find(&properties).Error
	if err != nil {
		return nil, err
	}

	return properties, nil
}

//GetHierarchySubtree returns the id of the node with the given id plus the ids of
//every descendant, computed as a single recursive query so that the number of
//round trips stays constant regardless of tree depth. An unknown or non-positive
//root yields an empty set, not an error.
func (db *myDB) GetHierarchySubtree(rootID int64) ([]uint, error) {
	ids := []uint{}

	if rootID <= 0 {
		return ids, nil
	}

	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM hierarchy_nodes WHERE id = ? AND deleted_at IS NULL
			UNION ALL
			SELECT n.id FROM hierarchy_nodes n
			JOIN subtree s ON n.parent_id = s.id
			WHERE n.deleted_at IS NULL
		)
		SELECT id FROM subtree`

	if err := db.impl.Raw(query, rootID).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("hierarchy subtree query failed: %w", err)
	}

	return ids, nil
}

//GetTelemetrySamples runs one scoped range query: samples joined to their device,
//restricted by tenant, scope and device type, to samples carrying the property
//key, and to the requested window, ordered ascending by timestamp and capped at
//Limit rows.
func (db *myDB) GetTelemetrySamples(query TelemetryQuery) ([]ScopedSample, error) {
	samples := []ScopedSample{}

	// A zero cap means zero rows, which the LIMIT clause cannot express here.
	if query.Limit <= 0 {
		return samples, nil
	}

	q := db.impl.Model(&models.TelemetrySample{}).
		Select("telemetry_samples.timestamp, telemetry_samples.payload, devices.serial_number").
		Joins("JOIN devices ON devices.id = telemetry_samples.device_id AND devices.deleted_at IS NULL").
		Where("devices.company_id = ?", query.CompanyID).
		Where("devices.device_type_id = ?", query.DeviceTypeID)

	if query.NodeIDs != nil {
		q = q.Where("devices.hierarchy_node_id IN ?", query.NodeIDs)
	} else if query.DeviceID != nil {
		q = q.Where("devices.id = ?", *query.DeviceID)
	}

	if !query.From.IsZero() {
		q = q.Where("telemetry_samples.timestamp >= ?", query.From)
	}

	err := q.Where(db.payloadContains, query.PropertyKey).
		Order("telemetry_samples.timestamp asc, telemetry_samples.id asc").
		Limit(query.Limit).
		Scan(&samples).Error

	if err != nil {
		return nil, fmt.Errorf("telemetry query failed: %w", err)
	}

	return samples, nil
}
