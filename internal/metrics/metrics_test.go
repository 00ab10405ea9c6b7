package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncAndAdd(t *testing.T) {
	before := CyclesTotal.Value()
	Inc(CyclesTotal)
	assert.Equal(t, before+1, CyclesTotal.Value())

	before = RecordsPublished.Value()
	Add(RecordsPublished, 5)
	assert.Equal(t, before+5, RecordsPublished.Value())
}
