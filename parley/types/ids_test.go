package types

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIDSortsInCreationOrder(t *testing.T) {
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = NewID()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}
