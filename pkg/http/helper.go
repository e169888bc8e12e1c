package http

import (
	"net/http"
	"strconv"
	"time"

	"deskly/pkg/config"
	apperrors "deskly/pkg/errors"
	"deskly/pkg/model"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ExtractInterval parses the start/end query parameters into an Interval.
// Both must be RFC3339 timestamps; validation of the interval itself is the
// service's job.
func ExtractInterval(r *http.Request) (model.Interval, error) {
	query := r.URL.Query()

	start, err := parseTimeParam(query.Get("start"), "start")
	if err != nil {
		return model.Interval{}, err
	}
	end, err := parseTimeParam(query.Get("end"), "end")
	if err != nil {
		return model.Interval{}, err
	}

	return model.Interval{Start: start, End: end}, nil
}

func parseTimeParam(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperrors.InvalidInput("missing required parameter: " + name)
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("invalid " + name + " parameter, must be RFC3339")
	}
	return parsed, nil
}
