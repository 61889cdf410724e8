package pricing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfeasibleErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("solve: %w", &InfeasibleError{Category: "sdr", Required: 1575, MaxAttainable: 1520, AnchorRevenue: 1500})

	assert.True(t, errors.Is(err, ErrInfeasible))

	var infeasible *InfeasibleError
	assert.True(t, errors.As(err, &infeasible))
	assert.Contains(t, err.Error(), "revenue floor")
	assert.Contains(t, err.Error(), "holding all prices yields 1500.00")
}

func TestInvalidConfigurationf(t *testing.T) {
	err := InvalidConfigurationf("steps must be at least %d, got %d", 2, 1)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.Equal(t, "invalid configuration: steps must be at least 2, got 1", err.Error())
}

func TestProductMargin(t *testing.T) {
	p := Product{Price: 10, Cost: 7}
	assert.InDelta(t, 3.0, p.Margin(), 1e-12)
}
