package application

import (
	"compress/flate"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/rs/cors"

	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/config"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/logging"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/metrics"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/repositories/database"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/repositories/models"
	"github.com/saad-devops0491/dashboard/internal/pkg/widgetdata"
)

//MessagingContext is an interface that allows mocking of messaging.Context parameters
type MessagingContext interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

type RequestRouter struct {
	impl *chi.Mux
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//Post accepts a pattern that should be routed to the handlerFn on a POST request
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	// Enable gzip compression for json responses
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.Logger)

	return router
}

func createRequestRouter(log logging.Logger, service *widgetdata.Service, db database.Datastore, messenger MessagingContext, recorder *metrics.Recorder) *RequestRouter {
	router := newRequestRouter()

	router.impl.Handle("/metrics", recorder.Handler())

	router.Get("/widgets/widget-data/{widgetId}", RequirePrincipal(NewRetrieveWidgetDataHandler(log, service, recorder)))
	router.Get("/widgets/{widgetId}", RequirePrincipal(NewRetrieveWidgetHandler(log, db)))
	router.Post("/widgets", RequirePrincipal(NewCreateWidgetHandler(log, db)))
	router.Post("/telemetry", RequirePrincipal(NewIngestTelemetryHandler(log, db, messenger, recorder)))

	return router
}

//CreateRouterAndStartServing sets up the request router and starts serving incoming requests
func CreateRouterAndStartServing(log logging.Logger, cfg config.Config, service *widgetdata.Service, db database.Datastore, messenger MessagingContext, recorder *metrics.Recorder) {
	router := createRequestRouter(log, service, db, messenger, recorder)

	log.Infof("Starting dashboard-api on port %s.\n", cfg.ServicePort)
	log.Fatal(http.ListenAndServe(":"+cfg.ServicePort, router.impl))
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type widgetDataResponse struct {
	Success bool                         `json:"success"`
	Data    map[string]widgetdata.Series `json:"data"`
	Config  models.DataSourceConfig      `json:"config"`
	Table   widgetdata.Table             `json:"table"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

//NewRetrieveWidgetDataHandler returns the handler for the widget data read path
func NewRetrieveWidgetDataHandler(log logging.Logger, service *widgetdata.Service, recorder *metrics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := PrincipalFromContext(r.Context())
		if err != nil {
			respondWithJSON(w, http.StatusUnauthorized, errorResponse{Message: "Missing identity"})
			return
		}

		widgetID, err := strconv.ParseUint(chi.URLParam(r, "widgetId"), 10, 32)
		if err != nil {
			recorder.CountWidgetDataRequest("404")
			respondWithJSON(w, http.StatusNotFound, errorResponse{Message: "Widget not found"})
			return
		}

		query := r.URL.Query()

		req := widgetdata.WidgetDataRequest{
			WidgetID:  uint(widgetID),
			CompanyID: principal.CompanyID,
			TimeRange: query.Get("timeRange"),
			Limit:     widgetdata.DefaultLimit,
		}

		if raw := query.Get("hierarchyId"); raw != "" {
			hierarchyID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				// A malformed selector scopes to nothing, the same as an
				// unknown node id.
				hierarchyID = -1
			}
			req.HierarchyID = &hierarchyID
		}

		if raw := query.Get("deviceId"); raw != "" {
			deviceID, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				// A malformed selector scopes to nothing, no device
				// carries id 0.
				deviceID = 0
			}

			id := uint(deviceID)
			req.DeviceID = &id
		}

		if raw := query.Get("limit"); raw != "" {
			if limit, err := strconv.Atoi(raw); err == nil && limit >= 0 {
				req.Limit = limit
			}
		}

		started := time.Now()
		result, err := service.GetWidgetData(r.Context(), req)
		recorder.ObserveFetchDuration(time.Since(started).Seconds())

		if errors.Is(err, database.ErrNotFound) {
			recorder.CountWidgetDataRequest("404")
			respondWithJSON(w, http.StatusNotFound, errorResponse{Message: "Widget not found"})
			return
		}

		if err != nil {
			log.Errorf("failed to fetch data for widget %d: %s", widgetID, err.Error())
			recorder.CountWidgetDataRequest("500")
			respondWithJSON(w, http.StatusInternalServerError, errorResponse{Message: "Failed to fetch widget data", Error: err.Error()})
			return
		}

		recorder.CountWidgetDataRequest("200")
		respondWithJSON(w, http.StatusOK, widgetDataResponse{
			Success: true,
			Data:    result.Series,
			Config:  result.Config,
			Table:   result.Table,
		})
	}
}

type widgetResponse struct {
	Success bool          `json:"success"`
	Data    widgetDetails `json:"data"`
}

type widgetDetails struct {
	ID               uint                    `json:"id"`
	Name             string                  `json:"name"`
	WidgetType       string                  `json:"widgetType"`
	DataSourceConfig models.DataSourceConfig `json:"dataSourceConfig"`
}

//NewRetrieveWidgetHandler returns the handler serving single widget definitions
func NewRetrieveWidgetHandler(log logging.Logger, db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		widgetID, err := strconv.ParseUint(chi.URLParam(r, "widgetId"), 10, 32)
		if err != nil {
			respondWithJSON(w, http.StatusNotFound, errorResponse{Message: "Widget not found"})
			return
		}

		widget, err := db.GetWidgetFromID(uint(widgetID))
		if errors.Is(err, database.ErrNotFound) {
			respondWithJSON(w, http.StatusNotFound, errorResponse{Message: "Widget not found"})
			return
		}

		if err != nil {
			log.Errorf("failed to load widget %d: %s", widgetID, err.Error())
			respondWithJSON(w, http.StatusInternalServerError, errorResponse{Message: "Failed to load widget", Error: err.Error()})
			return
		}

		config, _ := models.ParseDataSourceConfig(widget.DataSourceConfig)

		respondWithJSON(w, http.StatusOK, widgetResponse{
			Success: true,
			Data: widgetDetails{
				ID:               widget.ID,
				Name:             widget.Name,
				WidgetType:       widget.WidgetType,
				DataSourceConfig: config,
			},
		})
	}
}

type createWidgetRequest struct {
	Name             string                  `json:"name"`
	WidgetType       string                  `json:"widgetType"`
	DataSourceConfig models.DataSourceConfig `json:"dataSourceConfig"`
}

//NewCreateWidgetHandler returns the handler that stores new widget definitions
func NewCreateWidgetHandler(log logging.Logger, db database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := createWidgetRequest{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request payload"})
			return
		}

		configBytes, err := json.Marshal(body.DataSourceConfig)
		if err != nil {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid data source config"})
			return
		}

		widget := &models.Widget{
			Name:             body.Name,
			WidgetType:       body.WidgetType,
			DataSourceConfig: string(configBytes),
		}

		widget, err = db.CreateWidget(widget)
		if err != nil {
			log.Errorf("failed to create widget: %s", err.Error())
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
			return
		}

		respondWithJSON(w, http.StatusCreated, widgetResponse{
			Success: true,
			Data: widgetDetails{
				ID:               widget.ID,
				Name:             widget.Name,
				WidgetType:       widget.WidgetType,
				DataSourceConfig: body.DataSourceConfig,
			},
		})
	}
}

type ingestTelemetryRequest struct {
	DeviceID  uint                   `json:"deviceId"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
}

//NewIngestTelemetryHandler returns the handler that accepts telemetry samples,
//stores them and announces them on the message broker
func NewIngestTelemetryHandler(log logging.Logger, db database.Datastore, messenger MessagingContext, recorder *metrics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := PrincipalFromContext(r.Context())
		if err != nil {
			respondWithJSON(w, http.StatusUnauthorized, errorResponse{Message: "Missing identity"})
			return
		}

		body := ingestTelemetryRequest{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request payload"})
			return
		}

		if body.DeviceID == 0 || len(body.Payload) == 0 {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Message: "deviceId and a non-empty payload are required"})
			return
		}

		device, err := db.GetDeviceFromID(body.DeviceID)

		// A device outside the caller's company is indistinguishable from a
		// device that does not exist.
		if errors.Is(err, database.ErrNotFound) || (err == nil && device.CompanyID != principal.CompanyID) {
			respondWithJSON(w, http.StatusNotFound, errorResponse{Message: "Device not found"})
			return
		}

		if err != nil {
			log.Errorf("failed to load device %d: %s", body.DeviceID, err.Error())
			respondWithJSON(w, http.StatusInternalServerError, errorResponse{Message: "Failed to store telemetry", Error: err.Error()})
			return
		}

		payloadBytes, _ := json.Marshal(body.Payload)

		sample := &models.TelemetrySample{
			DeviceID: device.ID,
			Payload:  string(payloadBytes),
		}
		if body.Timestamp != nil {
			sample.Timestamp = *body.Timestamp
		}

		sample, err = db.CreateTelemetrySample(sample)
		if err != nil {
			log.Errorf("failed to store telemetry for device %s: %s", device.SerialNumber, err.Error())
			respondWithJSON(w, http.StatusInternalServerError, errorResponse{Message: "Failed to store telemetry", Error: err.Error()})
			return
		}

		recorder.CountIngestedSample()

		if err := messenger.PublishOnTopic(NewTelemetrySampleStored(device.SerialNumber, sample.Timestamp, body.Payload)); err != nil {
			log.Errorf("failed to publish stored sample for device %s: %s", device.SerialNumber, err.Error())
		}

		respondWithJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
	}
}
