package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrim(t *testing.T) {
	src := []byte("{\n  // comment\n  \"a\": \"// not a comment\", /* block */\n  \"b\": [1, 2,],\n  \"c\": \"quote \\\" inside\",\n}")
	res := trim(src, nil)
	assert.Equal(t, len(src), len(res))
	assert.Equal(t, "{\n            \n  \"a\": \"// not a comment\",            \n  \"b\": [1, 2 ],\n  \"c\": \"quote \\\" inside\" \n}", string(res))
}
