package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/factstore"
	"github.com/sells-group/agristat/internal/model"
)

// int64Param parses a required integer query parameter.
func int64Param(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, eris.Wrapf(model.ErrInvalidFilter, "missing %s", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(model.ErrInvalidFilter, "%s must be an integer", name)
	}
	return v, nil
}

// parentParam parses parent_id. Browsers send "null" or "undefined" for an
// unset select, both mean absent.
func parentParam(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("parent_id"))
	switch raw {
	case "", "null", "undefined":
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, eris.Wrap(model.ErrInvalidFilter, "parent_id must be an integer")
	}
	return &v, nil
}

func levelParam(r *http.Request, def model.Level) (model.Level, error) {
	raw := r.URL.Query().Get("level")
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return model.ParseLevel(raw)
}

// yearsParam reads an optional window from "year", or "from" and "to".
// A lone bound is widened with the configured default for the other.
func yearsParam(r *http.Request, defFrom, defTo int) (*factstore.YearRange, error) {
	q := r.URL.Query()
	if y := q.Get("year"); y != "" {
		v, err := strconv.Atoi(y)
		if err != nil {
			return nil, eris.Wrap(model.ErrInvalidFilter, "year must be an integer")
		}
		yr := factstore.Year(v)
		return yr, yr.Validate()
	}
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		return nil, nil
	}
	yr := factstore.YearRange{From: defFrom, To: defTo}
	var err error
	if from != "" {
		if yr.From, err = strconv.Atoi(from); err != nil {
			return nil, eris.Wrap(model.ErrInvalidFilter, "from must be an integer")
		}
	}
	if to != "" {
		if yr.To, err = strconv.Atoi(to); err != nil {
			return nil, eris.Wrap(model.ErrInvalidFilter, "to must be an integer")
		}
	}
	return &yr, yr.Validate()
}
