package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"www.marktplaats.nl/l/auto-s/", "https://www.marktplaats.nl/l/auto-s/"},
		{"  https://www.bilbasen.dk/brugt/bil ", "https://www.bilbasen.dk/brugt/bil"},
		{"HTTP://example.com", "HTTP://example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeURL(tt.in), tt.in)
	}
}

func TestValidateFlags(t *testing.T) {
	assert.NoError(t, validateFlags("csv"))
	assert.Error(t, validateFlags("xml"))
}

func TestBuildStudy(t *testing.T) {
	studyTarget, studySource = "www.bilbasen.dk/brugt/bil/toyota", "https://www.marktplaats.nl/l/auto-s/"
	studyBrand, studyModel, studyYear, studyYearMax = "Toyota", "Yaris", 2020, 2023
	studyThreshold, studyMaxInteresting = 4000, 3
	t.Cleanup(func() { studyYear, studyYearMax, studyThreshold = 0, 0, 5000 })

	s, err := buildStudy()
	require.NoError(t, err)
	assert.Equal(t, "https://www.bilbasen.dk/brugt/bil/toyota", s.TargetURL)
	assert.Equal(t, 2020, s.Criteria.Year)
	assert.Equal(t, 4000.0, s.Threshold)

	studyYear = 2024
	_, err = buildStudy()
	assert.Error(t, err)

	studyYear, studyThreshold = 2020, -1
	_, err = buildStudy()
	assert.Error(t, err)
}
