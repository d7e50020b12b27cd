package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMovementKind(t *testing.T) {
	tests := []struct {
		in   string
		want MovementKind
	}{
		{"SUBSCRIPTION", Subscription},
		{"REDEMPTION", Redemption},
		{"SUSCRIPCION", Subscription},
		{"RESCATE", Redemption},
		{" rescate ", Redemption},
	}
	for _, tt := range tests {
		got, err := ParseMovementKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMovementKind("TRANSFER")
	assert.ErrorContains(t, err, "TRANSFER")
}

func TestMovement_UnitDelta(t *testing.T) {
	units := decimal.NewFromInt(40)

	assert.True(t, Movement{Kind: Subscription, Units: units}.UnitDelta().Equal(units))
	assert.True(t, Movement{Kind: Redemption, Units: units}.UnitDelta().Equal(units.Neg()))
	assert.True(t, Movement{Kind: Redemption, Units: units.Neg()}.UnitDelta().Equal(units.Neg()))
	assert.True(t, Movement{Kind: "RESCATE", Units: units}.UnitDelta().IsZero(), "unparsed kinds never add units")
	assert.False(t, MovementKind("RESCATE").Valid())
}
