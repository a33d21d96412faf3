package controller

import (
	"log/slog"
	"net/http"

	"wxstats/internal/modules/weather/repository"
	"wxstats/internal/utils"
)

func (c *weatherControllerImpl) handleRecords(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecordQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := repository.RecordFilter{Date: q.Date, Station: q.Station}
	records, err := c.repository.GetRecords(r.Context(), c.db, filter, pageSize, q.Page*pageSize)
	if err != nil {
		slog.Error("weather: get records failed", "page", q.Page, "date", q.Date, "station", q.Station, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	utils.WriteResult(w, toRecordResponses(records))
}

func (c *weatherControllerImpl) handleStats(w http.ResponseWriter, r *http.Request) {
	q, err := parseStatsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := c.repository.GetStats(r.Context(), c.db, pageSize, q.Page*pageSize)
	if err != nil {
		slog.Error("stats: get stats failed", "page", q.Page, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	utils.WriteResult(w, toStatResponses(stats))
}
