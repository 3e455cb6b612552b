package shell

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArityRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		args     []any
		expKind  PayloadKind
		expValue any
	}{
		{
			name:    "tag only",
			expKind: PayloadNone,
		},
		{
			name:     "single value",
			args:     []any{"x"},
			expKind:  PayloadSingle,
			expValue: "x",
		},
		{
			name:     "single list value",
			args:     []any{[]int{1, 2}},
			expKind:  PayloadSingle,
			expValue: []any{float64(1), float64(2)},
		},
		{
			name:     "several values",
			args:     []any{"x", 2, true},
			expKind:  PayloadList,
			expValue: []any{"x", float64(2), true},
		},
		{
			name:     "trailing nils are dropped",
			args:     []any{"x", nil, nil},
			expKind:  PayloadSingle,
			expValue: "x",
		},
		{
			name:     "interior nils are kept",
			args:     []any{nil, "y"},
			expKind:  PayloadList,
			expValue: []any{nil, "y"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, err := Encode("cmd", c.args...)
			require.NoError(t, err)
			require.Equal(t, byte('\n'), b[len(b)-1])

			msg, err := Decode(string(b[:len(b)-1]))
			require.NoError(t, err)
			assert.Equal(t, "cmd", msg.Tag)
			assert.Equal(t, c.expKind, msg.Payload.Kind)

			if c.expKind == PayloadNone {
				assert.Error(t, msg.Payload.Decode(new(any)))
				return
			}
			var v any
			require.NoError(t, msg.Payload.Decode(&v))
			assert.Equal(t, c.expValue, v)
		})
	}
}

func TestDecodeListIntoStruct(t *testing.T) {
	msg, err := Decode(`["cell",0,1,"B1",true]`)
	require.NoError(t, err)
	require.Equal(t, PayloadList, msg.Payload.Kind)
	require.Len(t, msg.Payload.Values, 4)

	var v []json.RawMessage
	require.NoError(t, msg.Payload.Decode(&v))
	assert.Equal(t, `"B1"`, string(v[2]))
	assert.Equal(t, `[cell 0 1 "B1" true]`, msg.String())
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{name: "not json", line: "Traceback (most recent call last):"},
		{name: "object", line: `{"tag":"x"}`},
		{name: "empty array", line: `[]`},
		{name: "numeric tag", line: `[1,2]`},
		{name: "truncated", line: `["cell",[0,0`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Decode(c.line)
			require.Error(t, err)
			var malformed *MalformedMessageError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, c.line, malformed.Line)
			assert.Contains(t, err.Error(), c.line)
		})
	}
}
