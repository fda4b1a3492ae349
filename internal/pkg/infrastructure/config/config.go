package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/saad-devops0491/dashboard/internal/pkg/infrastructure/logging"
)

//Config holds the service level configuration. Database connection parameters are
//read by the repository layer itself, see database.NewPostgreSQLConnector.
type Config struct {
	ServicePort string
}

const defaultServicePort = "8880"

//Load reads configuration from a .env file, if one exists, and the environment
func Load(log logging.Logger) Config {
	if err := godotenv.Load(); err != nil {
		log.Infof("no .env file found, relying on the environment")
	}

	cfg := Config{
		ServicePort: defaultServicePort,
	}

	if port := os.Getenv("SERVICE_PORT"); port != "" {
		cfg.ServicePort = port
	}

	return cfg
}
