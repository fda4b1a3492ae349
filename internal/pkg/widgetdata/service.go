package widgetdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/logging"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/repositories/database"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/repositories/models"
)

//DefaultLimit is the per series row cap applied when a request does not carry a
//usable limit of its own
const DefaultLimit = 200

//WidgetDataRequest carries everything one widget data fetch depends on. Scope and
//time range always flow in here explicitly, the fetch never reads any ambient
//selection state.
type WidgetDataRequest struct {
	WidgetID    uint
	CompanyID   uint
	HierarchyID *int64
	DeviceID    *uint
	TimeRange   string
	Limit       int
}

//WidgetDataResult is the outcome of one fetch: the per series payload, the
//configuration it was produced from, and the normalized row table
type WidgetDataResult struct {
	Series map[string]Series
	Config models.DataSourceConfig
	Table  Table
}

//Service resolves widget data requests against the store
type Service struct {
	db  database.Datastore
	log logging.Logger
	now func() time.Time
}

//NewService creates a widget data service on top of the given datastore
func NewService(db database.Datastore, log logging.Logger) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

//GetWidgetData loads the widget's series configuration, resolves the device
//scope, fetches every configured series and normalizes the result. A widget id
//without a matching definition returns database.ErrNotFound. A widget with an
//empty series list returns an empty successful result without touching the
//telemetry store. If any single series fetch fails the whole request fails.
func (svc *Service) GetWidgetData(ctx context.Context, req WidgetDataRequest) (*WidgetDataResult, error) {
	widget, err := svc.db.GetWidgetFromID(req.WidgetID)
	if err != nil {
		return nil, err
	}

	config, err := models.ParseDataSourceConfig(widget.DataSourceConfig)
	if err != nil {
		return nil, fmt.Errorf("widget %d has an unreadable data source config: %w", req.WidgetID, err)
	}

	result := &WidgetDataResult{
		Series: map[string]Series{},
		Config: config,
	}

	if len(config.Series) == 0 {
		result.Table = Normalize(nil, nil, nil)
		return result, nil
	}

	scope, err := BuildScope(svc.db, req.CompanyID, req.HierarchyID, req.DeviceID)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit < 0 {
		limit = DefaultLimit
	}

	var from time.Time
	if window := TimeRangeWindow(req.TimeRange); window > 0 {
		from = svc.now().Add(-window)
	} else if req.TimeRange != "" {
		svc.log.Warnf("unrecognized time range %s on widget %d, returning unrestricted history", req.TimeRange, req.WidgetID)
	}

	// Series fetches are independent of each other, fan out and join before
	// normalizing.
	fetched := make([][]DataPoint, len(config.Series))
	group, _ := errgroup.WithContext(ctx)

	for i, spec := range config.Series {
		i, spec := i, spec
		group.Go(func() error {
			points, err := svc.fetchSeries(spec, scope, config.DeviceTypeID, from, limit)
			if err != nil {
				return err
			}

			fetched[i] = points
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	order := make([]string, 0, len(config.Series))
	units := map[string]string{}
	bySeries := map[string][]DataPoint{}

	for i, spec := range config.Series {
		result.Series[spec.Name] = Series{
			Data:         fetched[i],
			Unit:         spec.Unit,
			PropertyName: spec.PropertyKey,
		}

		order = append(order, spec.Name)
		units[spec.Name] = spec.Unit
		bySeries[spec.Name] = fetched[i]
	}

	result.Table = Normalize(bySeries, order, units)

	return result, nil
}

func (svc *Service) fetchSeries(spec models.SeriesSpec, scope Scope, deviceTypeID uint, from time.Time, limit int) ([]DataPoint, error) {
	samples, err := svc.db.GetTelemetrySamples(database.TelemetryQuery{
		CompanyID:    scope.CompanyID,
		DeviceTypeID: deviceTypeID,
		PropertyKey:  spec.PropertyKey,
		NodeIDs:      scope.NodeIDs,
		DeviceID:     scope.DeviceID,
		From:         from,
		Limit:        limit,
	})

	if err != nil {
		return nil, err
	}

	points := make([]DataPoint, 0, len(samples))

	for _, sample := range samples {
		payload := map[string]interface{}{}
		if err := json.Unmarshal([]byte(sample.Payload), &payload); err != nil {
			svc.log.Warnf("sample from device %s carries an unreadable payload", sample.SerialNumber)
		}

		points = append(points, DataPoint{
			Timestamp:    sample.Timestamp,
			SerialNumber: sample.SerialNumber,
			Value:        coerceNumeric(payload[spec.PropertyKey]),
		})
	}

	return points, nil
}

// A present but unparseable value coerces to 0 rather than dropping the point,
// so a widget's shape never changes between renders of the same data.
func coerceNumeric(raw interface{}) float64 {
	switch value := raw.(type) {
	case float64:
		return value
	case string:
		number, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		return number
	case bool:
		if value {
			return 1
		}
		return 0
	default:
		return 0
	}
}
