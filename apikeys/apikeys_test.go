package apikeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGet(t *testing.T) {
	s := New()
	assert.Equal(t, "", s.Get("abc12345678"))

	s.Set("abc12345678", "key-1")
	assert.Equal(t, "key-1", s.Get("abc12345678"))

	s.Set("abc12345678", "key-2")
	assert.Equal(t, "key-2", s.Get("abc12345678"), "a later resolution overwrites the earlier one")
}
