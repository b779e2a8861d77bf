package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Write(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("timezone database not available")
	}
	renderer := NewRenderer(ny)
	renderer.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	t.Run("should render timed and all day occurrences", func(t *testing.T) {
		// given
		timed := occurrence.Occurrence{
			Id:        uuid.New(),
			StartDate: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
			Status:    occurrence.StatusPublish,
			Details: occurrence.Details{
				Title:           "Office hours",
				Description:     "Weekly Q&A",
				RegistrationURL: "https://example.com/join",
				StartTime:       occurrence.NewTimeOfDay(10, 0),
				EndTime:         occurrence.NewTimeOfDay(11, 30),
			},
		}
		allDay := occurrence.Occurrence{
			Id:        uuid.New(),
			StartDate: time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
			Status:    occurrence.StatusDraft,
			Details:   occurrence.Details{Title: "Retreat"},
		}
		var out strings.Builder

		// when
		err := renderer.Write(&out, "Series", []occurrence.Occurrence{timed, allDay})

		// then
		require.NoError(t, err)
		body := out.String()
		assert.Contains(t, body, "SUMMARY:Office hours")
		assert.Contains(t, body, "DTSTART:20240108T150000Z")
		assert.Contains(t, body, "DTEND:20240108T163000Z")
		assert.Contains(t, body, "URL:https://example.com/join")
		assert.Contains(t, body, "DTSTART;VALUE=DATE:20240109")
		assert.Contains(t, body, "DTEND;VALUE=DATE:20240110")
		assert.Contains(t, body, "STATUS:TENTATIVE")
		assert.Contains(t, body, "X-WR-CALNAME:Series")
	})

	t.Run("should skip trashed occurrences", func(t *testing.T) {
		// given
		trashed := occurrence.Occurrence{
			Id:        uuid.New(),
			StartDate: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
			Status:    occurrence.StatusTrash,
			Details:   occurrence.Details{Title: "Cancelled"},
		}

		// when
		cal := renderer.Render("", []occurrence.Occurrence{trashed})

		// then
		assert.Empty(t, cal.Events())
	})
}
