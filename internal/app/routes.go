package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Occurrences
	r.HandleFunc("/api/occurrence", deps.OccurrenceHandler.List).Methods("GET")
	r.HandleFunc("/api/occurrence", deps.OccurrenceHandler.Create).Methods("POST")
	r.HandleFunc("/api/occurrence/{id}", deps.OccurrenceHandler.Get).Methods("GET")
	r.HandleFunc("/api/occurrence/{id}", deps.OccurrenceHandler.Update).Methods("PUT")
	r.HandleFunc("/api/occurrence/{id}", deps.OccurrenceHandler.Trash).Methods("DELETE")

	// Public registration
	r.HandleFunc("/api/occurrence/{id}/registrants", deps.RegistrationHandler.Register).Methods("POST")

	// Series
	r.HandleFunc("/api/series/{seriesId}", deps.SeriesHandler.GetMembers).Methods("GET")
	r.HandleFunc("/api/series/{seriesId}/calendar.ics", deps.SeriesHandler.ExportCalendar).Methods("GET")

	// Stats
	r.HandleFunc("/api/stats", deps.StatsHandler.GetStats).Queries("from", "{from}", "to", "{to}").Methods("GET")

	// External calendar
	if deps.ReconcileHandler != nil {
		r.HandleFunc("/api/sync", deps.ReconcileHandler.Sync).Methods("POST")
	}
	if deps.GoogleHandler != nil {
		r.HandleFunc("/api/integrations/google/calendars", deps.GoogleHandler.ListCalendars).Methods("GET")
	}
}
