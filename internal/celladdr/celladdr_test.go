package celladdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		address string
		expRow  int
		expCol  int
	}{
		{address: "", expRow: 0, expCol: 0},
		{address: "A1", expRow: 0, expCol: 0},
		{address: "E6", expRow: 5, expCol: 4},
		{address: "$B$3", expRow: 2, expCol: 1},
		{address: "AA10", expRow: 9, expCol: 26},
		{address: "ab2", expRow: 1, expCol: 27},
		{address: "XFD1048576", expRow: 1048575, expCol: 16383},
		{address: "3,4", expRow: 3, expCol: 4},
		{address: "0, 0", expRow: 0, expCol: 0},
	}
	for _, c := range cases {
		t.Run(c.address, func(t *testing.T) {
			row, col, err := Parse(c.address)
			require.NoError(t, err)
			assert.Equal(t, c.expRow, row)
			assert.Equal(t, c.expCol, col)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, address := range []string{"1A", "A0", "ABCD1", "a,b", "A1:B2", "#REF!"} {
		t.Run(address, func(t *testing.T) {
			_, _, err := Parse(address)
			assert.ErrorIs(t, err, ErrInvalidCellReference)
		})
	}
}

func TestColumnNames(t *testing.T) {
	for _, name := range []string{"A", "Z", "AA", "AZ", "BA", "ZZ", "AAA", "XFD"} {
		assert.Equal(t, name, ColumnName(ColumnIndex(name)))
	}
	assert.Equal(t, 0, ColumnIndex("A"))
	assert.Equal(t, 25, ColumnIndex("Z"))
	assert.Equal(t, 26, ColumnIndex("AA"))
	assert.Equal(t, "C7", Name(6, 2))
}
