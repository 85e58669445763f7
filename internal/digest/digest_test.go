package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	a := Bytes([]byte("class C { }"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Bytes([]byte("class C { }")))
	assert.NotEqual(t, a, Bytes([]byte("class C {}")))
}
