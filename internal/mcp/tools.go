package mcp

import (
	"context"
	"strings"
	"time"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

// historyRange returns start/end for a history query. An empty start means
// the whole history; an empty end means now.
func historyRange(startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = now
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// HistorySummary aggregates the sessions returned by get_exercise_history.
type HistorySummary struct {
	Exercise           string           `json:"exercise"`
	Sessions           []models.Session `json:"sessions"`
	Count              int              `json:"count"`
	TotalTimeUnderLoad int              `json:"total_time_under_load"`
	BestTimeUnderLoad  int              `json:"best_time_under_load"`
	MaxWeight          float64          `json:"max_weight"`
	PreviousDuration   int              `json:"previous_duration"`
}

func summarize(name string, sessions []models.Session, start, end time.Time) HistorySummary {
	sum := HistorySummary{
		Exercise:         name,
		Sessions:         []models.Session{},
		PreviousDuration: models.PreviousDuration(sessions),
	}
	for _, s := range sessions {
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		sum.Sessions = append(sum.Sessions, s)
		sum.Count++
		sum.TotalTimeUnderLoad += s.TimeUnderLoad
		sum.BestTimeUnderLoad = max(sum.BestTimeUnderLoad, s.TimeUnderLoad)
		sum.MaxWeight = max(sum.MaxWeight, s.Weight)
	}
	return sum
}

// --- Tool definitions ---

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List exercises with their session counts, previous set duration and whether the timer is running on them."),
	mcp.WithString("filter", mcp.Description("Only exercises whose name contains this text (case-insensitive)")),
)

var toolGetExerciseHistory = mcp.NewTool("get_exercise_history",
	mcp.WithDescription("Session history for one exercise: weight and seconds under load per set, plus totals and bests over the range."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Exact exercise name (e.g. 'Leg Press')")),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to the first session.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolGetTimerStatus = mcp.NewTool("get_timer_status",
	mcp.WithDescription("Current timer state: armed exercise, elapsed seconds, previous duration and seconds remaining to match it."),
)

// exerciseListing is one entry of list_exercises.
type exerciseListing struct {
	Name             string    `json:"name"`
	Sessions         int       `json:"sessions"`
	PreviousDuration int       `json:"previous_duration"`
	LastUpdated      time.Time `json:"last_updated"`
	Running          bool      `json:"running"`
	Pending          bool      `json:"pending"`
}

// --- Tool handlers ---

func (h *handlers) listExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := strings.ToLower(req.GetString("filter", ""))
	uid := UserIDFromContext(ctx)

	rows, err := h.ds.ListExercises(ctx, uid)
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	list := make([]exerciseListing, 0, len(rows))
	for _, r := range rows {
		if filter != "" && !strings.Contains(strings.ToLower(r.Name), filter) {
			continue
		}
		list = append(list, exerciseListing{
			Name:             r.Name,
			Sessions:         len(r.Sessions),
			PreviousDuration: r.PreviousDuration,
			LastUpdated:      r.LastUpdated,
			Running:          r.Running,
			Pending:          r.Pending,
		})
	}

	result, err := mcp.NewToolResultJSON(list)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}

	start, end, err := historyRange(req.GetString("start", ""), req.GetString("end", ""), time.Now())
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	row, err := h.ds.GetExercise(ctx, uid, name)
	if trackerr.Is(err, trackerr.ErrNotFound) {
		return mcp.NewToolResultError("no exercise named " + name), nil
	}
	if err != nil {
		h.log.Error("mcp get_exercise_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(summarize(row.Name, row.Sessions, start, end))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getTimerStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)
	view, err := h.ds.TimerStatus(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_timer_status", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(view)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
