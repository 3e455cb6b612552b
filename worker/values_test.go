package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsDateFormatCode(t *testing.T) {
	cases := []struct {
		code   string
		isDate bool
	}{
		{code: "yyyy-mm-dd", isDate: true},
		{code: "m/d/yy h:mm", isDate: true},
		{code: "hh:mm:ss", isDate: true},
		{code: "[h]:mm", isDate: true},
		{code: "[$-409]mmmm d, yyyy", isDate: true},
		{code: "General"},
		{code: "0.00"},
		{code: "#,##0.00"},
		{code: "0.00E+00"},
		{code: "@"},
		{code: "[Red]0.00"},
		{code: "[Magenta]#,##0"},
		{code: `0.00 "days"`},
		{code: `#,##0\d`},
		{code: "_(* #,##0_);_(* (#,##0)"},
	}
	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			assert.Equal(t, c.isDate, isDateFormatCode(c.code))
		})
	}
}

func TestDateValue(t *testing.T) {
	v := dateValue(time.Date(2020, time.March, 4, 5, 6, 7, 500000000, time.UTC))
	assert.Equal(t, []any{"date", 2020, 3, 4, 5, 6, 7.5}, v)
}

func TestRestoreDates(t *testing.T) {
	ms := time.Date(2014, time.January, 1, 12, 30, 0, 0, time.Local).UnixMilli()
	v := restoreDates([]any{1.0, map[string]any{"$date": float64(ms)}, map[string]any{"a": 1.0}})

	values := v.([]any)
	assert.Equal(t, 1.0, values[0])
	assert.Equal(t, time.Date(2014, time.January, 1, 12, 30, 0, 0, time.UTC), values[1])
	assert.Equal(t, map[string]any{"a": 1.0}, values[2])
}
