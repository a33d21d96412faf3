package controller

import (
	"net/http"

	"wxstats/internal/modules/weather/repository"
)

type WeatherController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type weatherControllerImpl struct {
	db         repository.DBTX
	repository repository.WeatherRepository
}

func NewWeatherController(db repository.DBTX, repository repository.WeatherRepository) WeatherController {
	return &weatherControllerImpl{db: db, repository: repository}
}

func (c *weatherControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/weather", c.handleRecords)
	mux.HandleFunc("GET /api/weather/{page}/{date}/{station}", c.handleRecords)
	mux.HandleFunc("GET /api/stats", c.handleStats)
	mux.HandleFunc("GET /api/stats/{page}", c.handleStats)
}
