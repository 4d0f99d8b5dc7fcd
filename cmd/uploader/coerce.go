package uploader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
	"github.com/ackruti/Oracle-etl-tool/cmd/gateway"
)

// coerce converts the string cells of ds to the value family of the table
// column they are inserted into. Text columns keep the file's text exactly.
// Columns the table does not have are left for the insert to reject.
func (u *Uploader) coerce(ds *dataset.Dataset, schema *gateway.TableSchema) error {
	for _, name := range ds.Columns() {
		col, ok := schema.Column(name)
		if !ok {
			continue
		}

		var fn func(string) (any, error)
		switch col.Kind() {
		case gateway.KindInteger, gateway.KindDecimal:
			fn = parseNumber
		case gateway.KindFloat:
			fn = parseFloat
		case gateway.KindBool:
			fn = parseBool
		case gateway.KindTemporal:
			fn = u.parseTemporal
		default:
			continue
		}

		err := ds.MapColumn(name, func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return v, nil
			}
			return fn(strings.TrimSpace(s))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// parseNumber keeps integers exact. Values beyond int64 stay text so the
// database parses them at full precision.
func parseNumber(s string) (any, error) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return s, nil
	}
	return parseFloat(s)
}

func parseFloat(s string) (any, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}

func parseBool(s string) (any, error) {
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return s, nil
}

func (u *Uploader) parseTemporal(s string) (any, error) {
	for _, layout := range []string{u.opts.DateLayout, time.DateTime, time.DateOnly, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a date", etlerr.ErrMalformedDate, s)
}
