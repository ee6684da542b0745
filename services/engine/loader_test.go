package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeriesAt(t *testing.T) {
	s := Series{flat(0, "1", ""), flat(1, "2", "")}

	b, ok := s.At(1)
	assert.True(t, ok)
	assert.True(t, b.Close.Equal(num("2")))

	_, ok = s.At(2)
	assert.False(t, ok)
	_, ok = s.At(-1)
	assert.False(t, ok)

	_, ok = Series{}.Last()
	assert.False(t, ok)
}

func TestSeriesValidate(t *testing.T) {
	assert.NoError(t, Series{flat(0, "1", ""), flat(1, "2", "")}.Validate())
	assert.ErrorIs(t, Series{flat(0, "1", ""), flat(0, "2", "")}.Validate(), ErrUnorderedBars)
	assert.ErrorIs(t, Series{mkBar(0, "1", "1", "2", "1", "")}.Validate(), ErrInvalidBar)
	// untimed bars are allowed
	assert.NoError(t, Series{{Close: num("1")}, {Close: num("2")}}.Validate())
}

func TestSeriesDetectGaps(t *testing.T) {
	s := Series{flat(0, "1", ""), flat(1, "1", ""), flat(4, "1", ""), flat(5, "1", "")}
	assert.Equal(t, []int{1}, s.DetectGaps(time.Minute))
	assert.Nil(t, s.DetectGaps(0))
}

func TestSeriesChecksum(t *testing.T) {
	a := Series{flat(0, "1.50", "20")}
	b := Series{flat(0, "1.5", "20")}
	c := Series{flat(0, "1.5", "")}
	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.NotEqual(t, b.Checksum(), c.Checksum())
}
