package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithoutEpic(t *testing.T) {
	argv := []string{"-x", "--epic", "-c", "33ff", "--epic=true"}
	assert.Equal(t, []string{"-x", "-c", "33ff"}, withoutEpic(argv))
	assert.Equal(t, []string{"-x", "--epic", "-c", "33ff", "--epic=true"}, argv)
}

func TestRainbow(t *testing.T) {
	noColor := color.NoColor
	defer func() { color.NoColor = noColor }()

	color.NoColor = true
	var out bytes.Buffer
	require.NoError(t, rainbow(strings.NewReader("SWC ID: 106\nSeverity: High"), &out))
	assert.Equal(t, "SWC ID: 106\nSeverity: High\n", out.String())

	color.NoColor = false
	out.Reset()
	require.NoError(t, rainbow(strings.NewReader("ab\nc"), &out))
	assert.Equal(t, "\x1b[31ma\x1b[0m\x1b[33mb\x1b[0m\n\x1b[33mc\x1b[0m\n", out.String())
}

func TestCapabilities(t *testing.T) {
	defer func(v string) { OnlineLookup = v }(OnlineLookup)
	assert.True(t, capabilities().OnlineSignatureLookup)
	OnlineLookup = "false"
	assert.False(t, capabilities().OnlineSignatureLookup)
}
