// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricKindValid(t *testing.T) {
	for _, k := range MetricKinds {
		assert.True(t, k.Valid(), k)
	}
	for _, k := range []MetricKind{"", "speed", "Count"} {
		assert.False(t, k.Valid(), k)
	}
}

func TestStyleAndModeValid(t *testing.T) {
	assert.True(t, StyleArtistic.Valid())
	assert.False(t, Style("vaporwave").Valid())
	assert.True(t, ModeLoose.Valid())
	assert.False(t, ExtractionMode("lenient").Valid())
}
