package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewULIDIsMonotonic(t *testing.T) {
	prev := NewULID()
	for i := 0; i < 1000; i++ {
		next := NewULID()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestNewUUIDIsUnique(t *testing.T) {
	assert.NotEqual(t, NewUUID(), NewUUID())
	assert.Len(t, NewUUID(), 36)
}
