package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRICE(t *testing.T) {
	score, err := RICE(100, 2, 0.8, 4)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, score, 1e-9)
}

func TestRICEInvalid(t *testing.T) {
	_, err := RICE(100, 2, 0.8, 0)
	assert.Error(t, err)

	_, err = RICE(100, 2, 1.5, 4)
	assert.Error(t, err)

	_, err = RICE(-1, 2, 0.8, 4)
	assert.Error(t, err)
}

func TestWSJF(t *testing.T) {
	score, err := WSJF(8, 5, 5, 5)
	require.NoError(t, err)
	assert.InDelta(t, 3.6, score, 1e-9)
}

func TestWSJFInvalid(t *testing.T) {
	_, err := WSJF(8, 5, 5, 0)
	assert.Error(t, err)

	_, err = WSJF(-1, 5, 5, 5)
	assert.Error(t, err)
}

func TestPERT(t *testing.T) {
	v, err := PERT(4, 8, 16)
	require.NoError(t, err)
	assert.InDelta(t, (4+4*8+16)/6.0, v, 1e-9)
}

func TestPERTOrdering(t *testing.T) {
	_, err := PERT(10, 8, 16)
	assert.Error(t, err)

	_, err = PERT(4, 20, 16)
	assert.Error(t, err)
}
