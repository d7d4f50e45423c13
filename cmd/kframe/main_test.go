// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearColor(t *testing.T) {
	for _, at := range []time.Duration{0, 500 * time.Millisecond, 3 * time.Second, time.Minute} {
		c := clearColor(at)
		assert.Equal(t, float32(1), c.W())
		for i := 0; i < 3; i++ {
			assert.GreaterOrEqual(t, c[i], float32(0))
			assert.LessOrEqual(t, c[i], float32(clearIntensity))
		}
	}
	assert.NotEqual(t, clearColor(0), clearColor(2*time.Second))
}

func TestInline(t *testing.T) {
	files := map[string]string{
		"common.glsl": "#include \"consts.glsl\"\nvec3 tint();",
		"consts.glsl": "const float k = 1.0;",
	}
	include := func(name string) ([]byte, error) {
		if src, ok := files[name]; ok {
			return []byte(src), nil
		}
		return nil, errors.New("not found")
	}

	out, err := inline([]byte("#version 450\n  #include \"common.glsl\"\nvoid main() {}"), include, 0)
	require.NoError(t, err)
	assert.Equal(t, "#version 450\nconst float k = 1.0;\nvec3 tint();\nvoid main() {}", string(out))

	_, err = inline([]byte("#include <missing.glsl>"), include, 0)
	assert.Error(t, err)
}

func TestInlineDepth(t *testing.T) {
	loop := func(string) ([]byte, error) {
		return []byte("#include \"self.glsl\""), nil
	}
	_, err := inline([]byte("#include \"self.glsl\""), loop, 0)
	assert.Error(t, err)
}
