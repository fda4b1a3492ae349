package database

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/logging"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/repositories/models"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func TestGetHierarchySubtreeIncludesRootAndAllDescendants(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		region := createNode(t, db, nil, "north", "region")
		area := createNode(t, db, &region.ID, "north-a", "area")
		field := createNode(t, db, &area.ID, "north-a-1", "field")
		other := createNode(t, db, nil, "south", "region")

		ids, err := db.GetHierarchySubtree(int64(region.ID))
		if err != nil {
			t.Error("GetHierarchySubtree failed:", err.Error())
		}

		if len(ids) != 3 {
			t.Error("expected 3 nodes in subtree, got", len(ids))
		}

		if !containsID(ids, region.ID) || !containsID(ids, area.ID) || !containsID(ids, field.ID) {
			t.Error("subtree is missing one of its own nodes:", ids)
		}

		if containsID(ids, other.ID) {
			t.Error("subtree must not contain nodes from another tree")
		}
	}
}

func TestGetHierarchySubtreeOnLeafReturnsSingleton(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		leaf := createNode(t, db, nil, "lonely", "well")

		ids, err := db.GetHierarchySubtree(int64(leaf.ID))
		if err != nil {
			t.Error("GetHierarchySubtree failed:", err.Error())
		}

		if len(ids) != 1 || ids[0] != leaf.ID {
			t.Error("expected singleton subtree, got", ids)
		}
	}
}

func TestGetHierarchySubtreeForUnknownRootReturnsEmptySet(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		for _, rootID := range []int64{999999, -1, 0} {
			ids, err := db.GetHierarchySubtree(rootID)
			if err != nil {
				t.Error("GetHierarchySubtree failed:", err.Error())
			}

			if len(ids) != 0 {
				t.Error("expected empty subtree for root", rootID, "got", ids)
			}
		}
	}
}

func TestGetWidgetFromIDReturnsErrNotFoundForUnknownWidget(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		_, err := db.GetWidgetFromID(999999)
		if !errors.Is(err, ErrNotFound) {
			t.Error("expected ErrNotFound, got", err)
		}
	}
}

func TestCreateWidgetRejectsUndeclaredPropertyKey(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-widgetcheck"})
		createProperty(t, db, deviceType.ID, "ofr", "OFR", "l/min")

		config := fmt.Sprintf(`{"deviceTypeId":%d,"series":[{"displayName":"GFR","propertyName":"gfr","unit":"m3/h"}]}`, deviceType.ID)
		_, err := db.CreateWidget(&models.Widget{Name: "bad", WidgetType: "line", DataSourceConfig: config})
		if err == nil {
			t.Error("expected widget creation to fail for undeclared property key")
		}
	}
}

func TestCreateWidgetAcceptsDeclaredPropertyKeys(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-widgetok"})
		createProperty(t, db, deviceType.ID, "ofr", "OFR", "l/min")

		config := fmt.Sprintf(`{"deviceTypeId":%d,"series":[{"displayName":"OFR","propertyName":"ofr","unit":"l/min"}]}`, deviceType.ID)
		widget, err := db.CreateWidget(&models.Widget{Name: "ok", WidgetType: "line", DataSourceConfig: config})
		if err != nil {
			t.Error("CreateWidget failed:", err.Error())
		}

		stored, err := db.GetWidgetFromID(widget.ID)
		if err != nil {
			t.Error("GetWidgetFromID failed:", err.Error())
		}

		if stored.Name != "ok" {
			t.Error("stored widget has wrong name:", stored.Name)
		}
	}
}

func TestGetTelemetrySamplesScopedByHierarchySubtree(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		companyID := uint(4001)
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-hierscope"})

		region := createNode(t, db, nil, "hier-region", "region")
		well := createNode(t, db, &region.ID, "hier-well", "well")
		elsewhere := createNode(t, db, nil, "hier-elsewhere", "region")

		d1 := createDevice(t, db, companyID, deviceType.ID, &well.ID, "SN-HIER-1")
		d2 := createDevice(t, db, companyID, deviceType.ID, &region.ID, "SN-HIER-2")
		d3 := createDevice(t, db, companyID, deviceType.ID, &elsewhere.ID, "SN-HIER-3")

		base := time.Now().UTC()
		createSample(t, db, d1.ID, base.Add(-50*time.Minute), `{"ofr": 10}`)
		createSample(t, db, d1.ID, base.Add(-40*time.Minute), `{"ofr": 11}`)
		createSample(t, db, d1.ID, base.Add(-30*time.Minute), `{"ofr": 12}`)
		createSample(t, db, d2.ID, base.Add(-45*time.Minute), `{"ofr": 20}`)
		createSample(t, db, d2.ID, base.Add(-35*time.Minute), `{"ofr": 21}`)
		createSample(t, db, d3.ID, base.Add(-20*time.Minute), `{"ofr": 30}`)

		nodeIDs, _ := db.GetHierarchySubtree(int64(region.ID))

		samples, err := db.GetTelemetrySamples(TelemetryQuery{
			CompanyID:    companyID,
			DeviceTypeID: deviceType.ID,
			PropertyKey:  "ofr",
			NodeIDs:      nodeIDs,
			From:         base.Add(-24 * time.Hour),
			Limit:        200,
		})

		if err != nil {
			t.Error("GetTelemetrySamples failed:", err.Error())
		}

		if len(samples) != 5 {
			t.Error("expected 5 samples from the subtree, got", len(samples))
		}

		for i := 1; i < len(samples); i++ {
			if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
				t.Error("samples are not in ascending timestamp order")
			}
		}

		for _, sample := range samples {
			if sample.SerialNumber != "SN-HIER-1" && sample.SerialNumber != "SN-HIER-2" {
				t.Error("sample from out-of-scope device leaked in:", sample.SerialNumber)
			}
		}
	}
}

func TestGetTelemetrySamplesNeverCrossesTenants(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-tenant"})

		foreign := createDevice(t, db, 5002, deviceType.ID, nil, "SN-TENANT-FOREIGN")
		createSample(t, db, foreign.ID, time.Now().UTC(), `{"ofr": 1}`)

		// correct device id, wrong company: must match nothing, not leak
		samples, err := db.GetTelemetrySamples(TelemetryQuery{
			CompanyID:    5001,
			DeviceTypeID: deviceType.ID,
			PropertyKey:  "ofr",
			DeviceID:     &foreign.ID,
			Limit:        200,
		})

		if err != nil {
			t.Error("GetTelemetrySamples failed:", err.Error())
		}

		if len(samples) != 0 {
			t.Error("cross tenant device id must match nothing, got", len(samples), "samples")
		}
	}
}

func TestGetTelemetrySamplesWithZeroDeviceSelectorMatchesNothing(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		companyID := uint(5101)
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-zerosel"})

		device := createDevice(t, db, companyID, deviceType.ID, nil, "SN-ZEROSEL-1")
		createSample(t, db, device.ID, time.Now().UTC(), `{"ofr": 3.5}`)

		// no device carries id 0, so a zero selector restricts to nothing
		// instead of widening to the whole company
		zero := uint(0)
		samples, err := db.GetTelemetrySamples(TelemetryQuery{
			CompanyID:    companyID,
			DeviceTypeID: deviceType.ID,
			PropertyKey:  "ofr",
			DeviceID:     &zero,
			Limit:        200,
		})

		if err != nil {
			t.Error("GetTelemetrySamples failed:", err.Error())
		}

		if len(samples) != 0 {
			t.Error("a device selector no device carries must match nothing, got", len(samples), "samples")
		}
	}
}

func TestGetTelemetrySamplesTreatsJSONNullAsAbsent(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		companyID := uint(5201)
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-jsonnull"})

		device := createDevice(t, db, companyID, deviceType.ID, nil, "SN-JSONNULL-1")
		createSample(t, db, device.ID, time.Now().UTC(), `{"ofr": null}`)
		createSample(t, db, device.ID, time.Now().UTC(), `{"ofr": 2.0}`)

		samples, err := db.GetTelemetrySamples(TelemetryQuery{
			CompanyID:    companyID,
			DeviceTypeID: deviceType.ID,
			PropertyKey:  "ofr",
			DeviceID:     &device.ID,
			Limit:        200,
		})

		if err != nil {
			t.Error("GetTelemetrySamples failed:", err.Error())
		}

		if len(samples) != 1 {
			t.Error("a null payload value must not count as carrying the key, got", len(samples), "samples")
		}
	}
}

func TestGetTelemetrySamplesExcludesOtherDeviceTypes(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		companyID := uint(4101)
		pumpType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-typecheck"})
		valveType, _ := db.CreateDeviceType(&models.DeviceType{Name: "valve-typecheck"})

		valve := createDevice(t, db, companyID, valveType.ID, nil, "SN-TYPE-VALVE")
		createSample(t, db, valve.ID, time.Now().UTC(), `{"ofr": 7}`)

		samples, err := db.GetTelemetrySamples(TelemetryQuery{
			CompanyID:    companyID,
			DeviceTypeID: pumpType.ID,
			PropertyKey:  "ofr",
			Limit:        200,
		})

		if err != nil {
			t.Error("GetTelemetrySamples failed:", err.Error())
		}

		if len(samples) != 0 {
			t.Error("device of another type must be excluded even when in scope")
		}
	}
}

func TestGetTelemetrySamplesSkipsSamplesWithoutPropertyKey(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		companyID := uint(4201)
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-keycheck"})
		device := createDevice(t, db, companyID, deviceType.ID, nil, "SN-KEY-1")

		now := time.Now().UTC()
		createSample(t, db, device.ID, now.Add(-2*time.Minute), `{"ofr": 5}`)
		createSample(t, db, device.ID, now.Add(-1*time.Minute), `{"wfr": 9}`)

		samples, err := db.GetTelemetrySamples(TelemetryQuery{
			CompanyID:    companyID,
			DeviceTypeID: deviceType.ID,
			PropertyKey:  "ofr",
			Limit:        200,
		})

		if err != nil {
			t.Error("GetTelemetrySamples failed:", err.Error())
		}

		if len(samples) != 1 {
			t.Error("expected only the sample carrying the key, got", len(samples))
		}
	}
}

func TestGetTelemetrySamplesHonorsWindowLowerBound(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		companyID := uint(4301)
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-window"})
		device := createDevice(t, db, companyID, deviceType.ID, nil, "SN-WINDOW-1")

		now := time.Now().UTC()
		createSample(t, db, device.ID, now.Add(-48*time.Hour), `{"ofr": 1}`)
		createSample(t, db, device.ID, now.Add(-1*time.Hour), `{"ofr": 2}`)

		query := TelemetryQuery{
			CompanyID:    companyID,
			DeviceTypeID: deviceType.ID,
			PropertyKey:  "ofr",
			From:         now.Add(-24 * time.Hour),
			Limit:        200,
		}

		samples, err := db.GetTelemetrySamples(query)
		if err != nil {
			t.Error("GetTelemetrySamples failed:", err.Error())
		}

		if len(samples) != 1 {
			t.Error("expected 1 sample inside the window, got", len(samples))
		}

		// no lower bound returns the full history
		query.From = time.Time{}
		samples, _ = db.GetTelemetrySamples(query)
		if len(samples) != 2 {
			t.Error("expected 2 samples without a window, got", len(samples))
		}
	}
}

func TestGetTelemetrySamplesWithZeroLimitReturnsNoRows(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		companyID := uint(4401)
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-zerolimit"})
		device := createDevice(t, db, companyID, deviceType.ID, nil, "SN-ZERO-1")
		createSample(t, db, device.ID, time.Now().UTC(), `{"ofr": 3}`)

		samples, err := db.GetTelemetrySamples(TelemetryQuery{
			CompanyID:    companyID,
			DeviceTypeID: deviceType.ID,
			PropertyKey:  "ofr",
			Limit:        0,
		})

		if err != nil {
			t.Error("a zero limit must not be an error:", err)
		}

		if len(samples) != 0 {
			t.Error("a zero limit must return zero rows, got", len(samples))
		}
	}
}

func TestGetTelemetrySamplesCapsAtLimit(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		companyID := uint(4501)
		deviceType, _ := db.CreateDeviceType(&models.DeviceType{Name: "pump-cap"})
		device := createDevice(t, db, companyID, deviceType.ID, nil, "SN-CAP-1")

		now := time.Now().UTC()
		for i := 0; i < 5; i++ {
			createSample(t, db, device.ID, now.Add(time.Duration(-i)*time.Minute), `{"ofr": 1}`)
		}

		samples, err := db.GetTelemetrySamples(TelemetryQuery{
			CompanyID:    companyID,
			DeviceTypeID: deviceType.ID,
			PropertyKey:  "ofr",
			Limit:        3,
		})

		if err != nil {
			t.Error("GetTelemetrySamples failed:", err.Error())
		}

		if len(samples) != 3 {
			t.Error("expected the cap to apply, got", len(samples))
		}
	}
}

func TestCreateDeviceFailsWithUnknownDeviceType(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		_, err := db.CreateDevice(&models.Device{CompanyID: 1, DeviceTypeID: 999999, SerialNumber: "SN-NOTYPE"})
		if err == nil {
			t.Error("expected device creation to fail for unknown device type")
		}
	}
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}

	return false
}

func createNode(t *testing.T, db Datastore, parentID *uint, name, level string) *models.HierarchyNode {
	node, err := db.CreateHierarchyNode(&models.HierarchyNode{ParentID: parentID, Name: name, Level: level})
	if err != nil {
		t.Error("failed to create hierarchy node:", err.Error())
	}

	return node
}

func createProperty(t *testing.T, db Datastore, deviceTypeID uint, key, displayName, unit string) {
	_, err := db.CreateDeviceTypeProperty(&models.DeviceTypeProperty{
		DeviceTypeID: deviceTypeID,
		PropertyKey:  key,
		DisplayName:  displayName,
		Unit:         unit,
		DataType:     "number",
	})

	if err != nil {
		t.Error("failed to create device type property:", err.Error())
	}
}

func createDevice(t *testing.T, db Datastore, companyID, deviceTypeID uint, nodeID *uint, serial string) *models.Device {
	device, err := db.CreateDevice(&models.Device{
		CompanyID:       companyID,
		DeviceTypeID:    deviceTypeID,
		HierarchyNodeID: nodeID,
		SerialNumber:    serial,
	})

	if err != nil {
		t.Error("failed to create device:", err.Error())
	}

	return device
}

func createSample(t *testing.T, db Datastore, deviceID uint, timestamp time.Time, payload string) {
	_, err := db.CreateTelemetrySample(&models.TelemetrySample{
		DeviceID:  deviceID,
		Timestamp: timestamp,
		Payload:   payload,
	})

	if err != nil {
		t.Error("failed to create telemetry sample:", err.Error())
	}
}

func newDatabaseForTest(t *testing.T) (Datastore, bool) {
	log := logging.NewLogger()
	db, err := NewDatabaseConnection(NewSQLiteConnector(), log)

	if err != nil {
		t.Error(err.Error())
		return nil, false
	}

	return db, true
}
