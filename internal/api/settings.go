package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glendonC/mallards/internal/align"
)

// SettingsFromQuery overlays query parameters on base. Malformed numbers
// and unknown enum values fail with align.ErrInvalidSettings.
func SettingsFromQuery(base align.Settings, q url.Values) (align.Settings, error) {
	s := base
	if v := q.Get("timeRange"); v != "" {
		s.TimeRange = align.TimeRange(v)
	}
	if v := q.Get("sensitivity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, fmt.Errorf("%w: sensitivity %q", align.ErrInvalidSettings, v)
		}
		s.Sensitivity = n
	}
	if v := q.Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("%w: threshold %q", align.ErrInvalidSettings, v)
		}
		s.Threshold = f
	}
	if v := q.Get("alertThreshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("%w: alertThreshold %q", align.ErrInvalidSettings, v)
		}
		s.AlertThreshold = f
	}
	if _, ok := q["groupBy"]; ok {
		s.GroupBy = nil
		for _, part := range strings.Split(q.Get("groupBy"), ",") {
			if p := strings.TrimSpace(part); p != "" {
				s.GroupBy = append(s.GroupBy, p)
			}
		}
	}
	if v := q.Get("focus"); v != "" {
		s.Focus = align.FocusMode(v)
	}
	if v := q.Get("detector"); v != "" {
		s.Detector = align.Detector(v)
	}
	if v := q.Get("asOf"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return base, fmt.Errorf("%w: asOf %q", align.ErrInvalidSettings, v)
		}
		s.AsOf = t.UTC()
	}
	if err := s.Validate(); err != nil {
		return base, err
	}
	return s, nil
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseBool(raw string) bool {
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}
