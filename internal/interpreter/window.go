// internal/interpreter/window.go
package interpreter

import (
	"regexp"
	"strings"
	"time"

	"github.com/victor045/Agente-financiero/internal/models"
)

var monthToken = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
var yearToken = regexp.MustCompile(`^\d{4}$`)
var rangeToken = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}):(\d{4}-\d{2}-\d{2})$`)

// ParseWindow resolves a window token to a concrete inclusive time range.
// Supported tokens: relative Spanish/English aliases (este_mes, mes_pasado,
// este_anio, this_month, last_month, ytd), an absolute month (2025-06), an
// absolute year (2025), or an explicit day range (2025-06-01:2025-06-30).
func ParseWindow(token string, now time.Time) (*models.TimeWindow, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	token = strings.ReplaceAll(token, " ", "_")
	if token == "" {
		return nil, false
	}

	switch token {
	case "este_mes", "this_month", "current_month", "mes_actual":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return &models.TimeWindow{Start: start, End: start.AddDate(0, 1, -1)}, true
	case "mes_pasado", "last_month", "mes_anterior":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		return &models.TimeWindow{Start: start, End: start.AddDate(0, 1, -1)}, true
	case "este_anio", "this_year", "ytd", "ano_actual":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return &models.TimeWindow{Start: start, End: now}, true
	case "anio_pasado", "last_year", "ano_pasado":
		start := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location())
		return &models.TimeWindow{Start: start, End: time.Date(now.Year()-1, 12, 31, 0, 0, 0, 0, now.Location())}, true
	}

	if m := monthToken.FindStringSubmatch(token); m != nil {
		t, err := time.Parse("2006-01", m[1]+"-"+m[2])
		if err != nil {
			return nil, false
		}
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &models.TimeWindow{Start: start, End: start.AddDate(0, 1, -1)}, true
	}

	if yearToken.MatchString(token) {
		t, err := time.Parse("2006", token)
		if err != nil {
			return nil, false
		}
		return &models.TimeWindow{
			Start: time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(t.Year(), 12, 31, 0, 0, 0, 0, time.UTC),
		}, true
	}

	if m := rangeToken.FindStringSubmatch(token); m != nil {
		start, err1 := time.Parse("2006-01-02", m[1])
		end, err2 := time.Parse("2006-01-02", m[2])
		if err1 != nil || err2 != nil || end.Before(start) {
			return nil, false
		}
		return &models.TimeWindow{Start: start, End: end}, true
	}

	return nil, false
}
