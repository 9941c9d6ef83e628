package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagedb/pkg/types"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		columns   []Column
		expectErr bool
	}{
		{
			name: "typical",
			columns: []Column{
				NewColumn("id", types.Int32Type, false),
				NewVarColumn("name", types.VarCharType, false, 32),
			},
		},
		{
			name:      "empty",
			columns:   nil,
			expectErr: true,
		},
		{
			name: "duplicate names",
			columns: []Column{
				NewColumn("id", types.Int32Type, false),
				NewColumn("id", types.UInt32Type, false),
			},
			expectErr: true,
		},
		{
			name: "empty column name",
			columns: []Column{
				NewColumn("", types.Int32Type, false),
			},
			expectErr: true,
		},
		{
			name: "zero max length on varchar",
			columns: []Column{
				NewVarColumn("s", types.VarCharType, false, 0),
			},
			expectErr: true,
		},
		{
			name: "max length beyond one page is legal (overflow handles it)",
			columns: []Column{
				NewVarColumn("b", types.BlobType, false, 8192),
			},
		},
		{
			name: "unknown type",
			columns: []Column{
				{Name: "x", Type: types.Type(99)},
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSchema(tt.columns).Validate()
			if tt.expectErr {
				require.ErrorIs(t, err, ErrInvalidSchema)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestColumnIndex(t *testing.T) {
	s := NewSchema([]Column{
		NewColumn("id", types.Int32Type, false),
		NewColumn("score", types.Float64Type, true),
	})
	assert.Equal(t, 0, s.ColumnIndex("id"))
	assert.Equal(t, 1, s.ColumnIndex("score"))
	assert.Equal(t, -1, s.ColumnIndex("missing"))
	assert.Equal(t, 2, s.NumColumns())
}

func TestNullBitmapSize(t *testing.T) {
	cols := func(n int) []Column {
		out := make([]Column, n)
		for i := range out {
			out[i] = NewColumn(string(rune('a'+i)), types.BoolType, true)
		}
		return out
	}
	assert.Equal(t, 1, NewSchema(cols(1)).NullBitmapSize())
	assert.Equal(t, 1, NewSchema(cols(8)).NullBitmapSize())
	assert.Equal(t, 2, NewSchema(cols(9)).NullBitmapSize())
}

func TestMinRowSize(t *testing.T) {
	s := NewSchema([]Column{
		NewColumn("id", types.Int32Type, false),        // 4
		NewColumn("score", types.Float64Type, true),    // 8
		NewColumn("ok", types.BoolType, false),         // 1
		NewVarColumn("n", types.VarCharType, true, 32), // 2-byte prefix
	})
	// 1 bitmap byte + 4 + 8 + 1 + 2
	assert.Equal(t, 16, s.MinRowSize())
}

func TestColumnString(t *testing.T) {
	assert.Equal(t, "id INT32 NOT NULL", NewColumn("id", types.Int32Type, false).String())
	assert.Equal(t, "bio VARCHAR(100)", NewVarColumn("bio", types.VarCharType, true, 100).String())
}
