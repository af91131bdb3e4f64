package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name                       string
		cursor, page, perPage      string
		wantPage, wantPer, wantOff int
		wantCursor                 bool
	}{
		{"defaults", "", "", "", 1, 20, 0, false},
		{"third page", "", "3", "10", 3, 10, 20, false},
		{"page below one", "", "0", "", 1, 20, 0, false},
		{"per page clamped", "", "2", "500", 2, MaxPerPage, MaxPerPage, false},
		{"zero per page kept", "7", "", "0", 1, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.cursor, tt.page, tt.perPage)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantPer, p.PerPage)
			assert.Equal(t, tt.wantOff, p.Offset)
			assert.Equal(t, tt.wantCursor, p.HasCursor)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, args := range [][3]string{{"abc", "", ""}, {"-1", "", ""}, {"", "x", ""}, {"", "", "-5"}} {
		_, err := Parse(args[0], args[1], args[2])
		assert.Error(t, err, "%v", args)
	}
}
