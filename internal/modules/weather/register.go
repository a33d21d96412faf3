package weather

import (
	"database/sql"
	"log/slog"
	"net/http"

	"wxstats/internal/modules/weather/controller"
	"wxstats/internal/modules/weather/repository"
)

func RegisterFeature(mux *http.ServeMux, db *sql.DB, logger *slog.Logger) {
	weatherRepository := repository.NewRepository(logger)
	weatherController := controller.NewWeatherController(db, weatherRepository)
	weatherController.RegisterRoutes(mux)
}
