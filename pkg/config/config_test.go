package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{
			name: "typical",
			cfg:  Config{PageSize: 128, PoolSize: 4, DiskCapacity: 16, OverflowThreshold: 64},
		},
		{
			name: "minimum page size",
			cfg:  Config{PageSize: 64, PoolSize: 1, DiskCapacity: 1, OverflowThreshold: 32},
		},
		{
			name:      "zero page size",
			cfg:       Config{PageSize: 0, PoolSize: 4, DiskCapacity: 16, OverflowThreshold: 64},
			expectErr: true,
		},
		{
			name:      "zero pool size",
			cfg:       Config{PageSize: 128, PoolSize: 0, DiskCapacity: 16, OverflowThreshold: 64},
			expectErr: true,
		},
		{
			name:      "zero disk capacity",
			cfg:       Config{PageSize: 128, PoolSize: 4, DiskCapacity: 0, OverflowThreshold: 64},
			expectErr: true,
		},
		{
			name:      "zero overflow threshold",
			cfg:       Config{PageSize: 128, PoolSize: 4, DiskCapacity: 16, OverflowThreshold: 0},
			expectErr: true,
		},
		{
			name:      "page size below minimum",
			cfg:       Config{PageSize: 32, PoolSize: 4, DiskCapacity: 16, OverflowThreshold: 16},
			expectErr: true,
		},
		{
			name:      "page size not multiple of 8",
			cfg:       Config{PageSize: 130, PoolSize: 4, DiskCapacity: 16, OverflowThreshold: 64},
			expectErr: true,
		},
		{
			name:      "overflow threshold above page size",
			cfg:       Config{PageSize: 128, PoolSize: 4, DiskCapacity: 16, OverflowThreshold: 129},
			expectErr: true,
		},
		{
			name: "pool larger than disk is degenerate but legal",
			cfg:  Config{PageSize: 128, PoolSize: 32, DiskCapacity: 16, OverflowThreshold: 64},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.expectErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPoolExceedsDisk(t *testing.T) {
	assert.False(t, Default().PoolExceedsDisk())
	assert.True(t, Config{PageSize: 128, PoolSize: 32, DiskCapacity: 16, OverflowThreshold: 64}.PoolExceedsDisk())
}
