package web

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAssets(t *testing.T) {
	assets, err := Static()
	require.NoError(t, err)

	for _, name := range []string{"css/app.css", "js/live.js"} {
		_, err := fs.Stat(assets, name)
		assert.NoError(t, err, name)
	}
}

func TestTemplatePatternsMatch(t *testing.T) {
	for _, pattern := range TemplatePatterns {
		matches, err := fs.Glob(Templates, pattern)
		require.NoError(t, err)
		assert.NotEmpty(t, matches, pattern)
	}
}
