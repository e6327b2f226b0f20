package api

import (
	"net/http"
	"strings"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host
)

// Backends for the two built-in tools. The client's tool executors
// call these.

var sampleItems = []SampleItem{
	{
		ID:          "1",
		Name:        "Introduction to React",
		Category:    "books",
		Description: "A comprehensive guide to building modern web applications with React.",
		Value:       "$29.99",
		Metadata:    "Publisher: Tech Books Inc. | Pages: 450",
	},
	{
		ID:          "2",
		Name:        "Node.js Best Practices",
		Category:    "books",
		Description: "Learn industry-standard patterns and practices for Node.js development.",
		Value:       "$34.99",
		Metadata:    "Publisher: Dev Press | Pages: 380",
	},
	{
		ID:          "3",
		Name:        "Cloud Computing Essentials",
		Category:    "books",
		Description: "Master cloud infrastructure, deployment, and scaling strategies.",
		Value:       "$39.99",
		Metadata:    "Publisher: Cloud Masters | Pages: 520",
	},
}

// formattedLayout renders like a long US-English date and time.
const formattedLayout = "Monday, January 2, 2006 at 3:04:05 PM MST"

// GET /api/time?timezone=America/Chicago
func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	tz := r.URL.Query().Get("timezone")

	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			s.errorDetail(w, http.StatusBadRequest, "Invalid timezone", err.Error())
			return
		}
	} else {
		tz = "UTC"
	}

	writeJSON(w, TimeResponse{
		Datetime:  now.UTC().Format(isoMillis),
		Timezone:  tz,
		Formatted: now.In(loc).Format(formattedLayout),
		Timestamp: now.UnixMilli(),
	}, s.logger)
}

// GET /api/sample-data?category=books
func (s *Server) handleSampleData(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	resp := SampleDataResponse{Title: "All Items", Items: sampleItems}
	if category != "" {
		resp.Title = strings.ToUpper(category[:1]) + category[1:]
		resp.Items = []SampleItem{}
		for _, item := range sampleItems {
			if strings.EqualFold(item.Category, category) {
				resp.Items = append(resp.Items, item)
			}
		}
	}
	writeJSON(w, resp, s.logger)
}
