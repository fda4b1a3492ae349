package main

import (
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"

	"github.com/saad-devops0491/dashboard/internal/pkg/application"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/config"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/logging"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/metrics"
	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/repositories/database"
	"github.com/saad-devops0491/dashboard/internal/pkg/widgetdata"
)

func main() {

	serviceName := "dashboard-api"

	log := logging.NewLogger()
	log.Infof("Starting up %s ...", serviceName)

	cfg := config.Load(log)

	messagingConfig := messaging.LoadConfiguration(serviceName)
	messenger, err := messaging.Initialize(messagingConfig)
	if err != nil {
		log.Fatalf("Failed to connect to the message broker: %s", err.Error())
	}

	defer messenger.Close()

	db, err := database.NewDatabaseConnection(database.NewPostgreSQLConnector(log), log)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %s", err.Error())
	}

	recorder := metrics.NewRecorder()
	service := widgetdata.NewService(db, log)

	application.CreateRouterAndStartServing(log, cfg, service, db, messenger, recorder)
}
