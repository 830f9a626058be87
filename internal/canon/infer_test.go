package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferCategory(t *testing.T) {
	s := mustLoad(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"b2b wins over tech", "enterprise martech data platform for agencies", "B2B & Professional Services"},
		{"luxury before retail", "luxury skincare flagship store launch", "Luxury & Fashion"},
		{"finance before auto", "auto loan refinancing offers", "Finance & Insurance"},
		{"qsr", "new drive-thru value menu", "QSR"},
		{"auto", "all-new suv lineup reveal", "Auto"},
		{"fallback", "zzz", "CPG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.InferCategory(tt.text))
		})
	}
}

func TestBrandOverrides(t *testing.T) {
	s := mustLoad(t)

	category, ok := s.BrandOverride("Whole Foods")
	require.True(t, ok)
	assert.Equal(t, "Retail & E-Commerce", category)

	category, ok = s.BrandOverride("  Dunkin'  ")
	require.True(t, ok)
	assert.Equal(t, "QSR", category)

	_, ok = s.BrandOverride("Some Unknown Brand")
	assert.False(t, ok)

	assert.Equal(t, []string{"Tech & Wireless", "Travel & Hospitality"}, s.BrandCategories("Uber"))
	assert.Nil(t, s.BrandCategories("Ford"))
}

func TestIsLocalBrief(t *testing.T) {
	s := mustLoad(t)

	assert.True(t, s.IsLocalBrief("Statewide push across Texas"))
	assert.True(t, s.IsLocalBrief("DMA-targeted activation"))
	assert.True(t, s.IsLocalBrief("Grand opening in Nashville this fall"))
	assert.False(t, s.IsLocalBrief("National awareness push"))
}

func TestLocalSegmentFor(t *testing.T) {
	s := mustLoad(t)

	segment, ok := s.LocalSegmentFor("the Austin market")
	require.True(t, ok)
	assert.Equal(t, "Austin Culture", segment)

	_, ok = s.LocalSegmentFor("Anchorage")
	assert.False(t, ok)
}

func TestDetectLineage(t *testing.T) {
	s := mustLoad(t)

	lineage, ok := s.DetectLineage("Celebrating HBCU homecoming season")
	require.True(t, ok)
	assert.Equal(t, "Black American", lineage)

	lineage, ok = s.DetectLineage("a bilingual Hispanic heritage campaign")
	require.True(t, ok)
	assert.Equal(t, "Latino / Hispanic", lineage)

	_, ok = s.DetectLineage("general market launch")
	assert.False(t, ok)
}

func TestRotationWeight(t *testing.T) {
	s := mustLoad(t)

	assert.InDelta(t, 1.0, s.RotationWeight("Backpacker", "Travel & Hospitality", -1), 1e-9)
	assert.InDelta(t, 0.6, s.RotationWeight("Romantic Voyager", "Travel & Hospitality", -1), 1e-9)
	assert.InDelta(t, 0.3, s.RotationWeight("Backpacker", "Travel & Hospitality", 5), 1e-9)
	assert.InDelta(t, 0.5, s.RotationWeight("Backpacker", "Travel & Hospitality", 30), 1e-9)
	assert.InDelta(t, 0.7, s.RotationWeight("Backpacker", "Travel & Hospitality", 80), 1e-9)
	assert.InDelta(t, 1.0, s.RotationWeight("Backpacker", "Travel & Hospitality", 150), 1e-9)
	assert.InDelta(t, 0.18, s.RotationWeight("Romantic Voyager", "Travel & Hospitality", 5), 1e-9)

	assert.True(t, s.IsHot("Takeout Guru", "QSR"))
	assert.False(t, s.IsHot("Takeout Guru", "Auto"))
}
