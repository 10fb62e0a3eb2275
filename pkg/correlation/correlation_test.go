// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCorrelationID(t *testing.T) {
	tests := []struct {
		name          string
		ctx           context.Context
		correlationID string
		want          string
	}{
		{
			name:          "Add correlation ID to context",
			ctx:           context.Background(),
			correlationID: "test-correlation-id",
			want:          "test-correlation-id",
		},
		{
			name:          "Add correlation ID to nil context",
			ctx:           nil,
			correlationID: "test-correlation-id-2",
			want:          "test-correlation-id-2",
		},
		{
			name:          "Add empty correlation ID",
			ctx:           context.Background(),
			correlationID: "",
			want:          "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithCorrelationID(tt.ctx, tt.correlationID)
			require.NotNil(t, ctx)
			assert.Equal(t, tt.want, GetCorrelationID(ctx))
		})
	}
}

func TestGetCorrelationID_Missing(t *testing.T) {
	assert.Empty(t, GetCorrelationID(context.Background()))
	assert.Empty(t, GetCorrelationID(nil)) //nolint:staticcheck // nil context is handled
}

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)

	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	require.NotEmpty(t, id)
	assert.Equal(t, id, GetCorrelationID(ctx))

	same, sameID := Ensure(ctx)
	assert.Equal(t, id, sameID)
	assert.Equal(t, ctx, same)
}
