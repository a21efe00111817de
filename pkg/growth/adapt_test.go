package growth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdapt(t *testing.T) {
	base := DefaultParameters()

	t.Run("neutral input leaves parameters alone", func(t *testing.T) {
		in := AdaptationInput{SemanticDensity: 0.5, VisualComplexity: 0.45, CognitiveLoad: 0.8}
		assert.Equal(t, base, Adapt(in, base))
	})

	t.Run("sparse semantics raise gravity", func(t *testing.T) {
		out := Adapt(AdaptationInput{SemanticDensity: 0.1, VisualComplexity: 0.45, CognitiveLoad: 0.8}, base)
		assert.InDelta(t, 0.55, out.SemanticGravity, 1e-9)
	})

	t.Run("dense semantics lower gravity", func(t *testing.T) {
		out := Adapt(AdaptationInput{SemanticDensity: 0.9, VisualComplexity: 0.45, CognitiveLoad: 0.8}, base)
		assert.InDelta(t, 0.475, out.SemanticGravity, 1e-9)
	})

	t.Run("straight growth raises interference", func(t *testing.T) {
		out := Adapt(AdaptationInput{SemanticDensity: 0.5, VisualComplexity: 0.1, CognitiveLoad: 0.8}, base)
		assert.InDelta(t, 0.33, out.InterferenceAmplitude, 1e-9)
	})

	t.Run("tangled growth lowers interference", func(t *testing.T) {
		out := Adapt(AdaptationInput{SemanticDensity: 0.5, VisualComplexity: 0.9, CognitiveLoad: 0.8}, base)
		assert.InDelta(t, 0.27, out.InterferenceAmplitude, 1e-9)
	})

	t.Run("high load slows decay", func(t *testing.T) {
		out := Adapt(AdaptationInput{SemanticDensity: 0.5, VisualComplexity: 0.45, CognitiveLoad: 1.8}, base)
		assert.InDelta(t, 0.27, out.EnergyDecay, 1e-9)
	})

	t.Run("low load speeds decay", func(t *testing.T) {
		out := Adapt(AdaptationInput{SemanticDensity: 0.5, VisualComplexity: 0.45, CognitiveLoad: 0.1}, base)
		assert.InDelta(t, 0.315, out.EnergyDecay, 1e-9)
	})

	t.Run("other parameters pass through", func(t *testing.T) {
		out := Adapt(AdaptationInput{}, base)
		assert.Equal(t, base.Embodiment, out.Embodiment)
		assert.Equal(t, base.BranchProbability, out.BranchProbability)
	})
}

func TestAdapt_Clamps(t *testing.T) {
	high := Parameters{SemanticGravity: 1, InterferenceAmplitude: 1, EnergyDecay: 1}
	out := Adapt(AdaptationInput{SemanticDensity: 0, VisualComplexity: 0, CognitiveLoad: 0}, high)
	assert.Equal(t, 1.0, out.SemanticGravity)
	assert.Equal(t, 1.0, out.InterferenceAmplitude)
	assert.Equal(t, 1.0, out.EnergyDecay)

	low := Parameters{SemanticGravity: 0.1, InterferenceAmplitude: 0.1, EnergyDecay: 0.1}
	out = Adapt(AdaptationInput{SemanticDensity: 1, VisualComplexity: 1, CognitiveLoad: 2}, low)
	assert.Equal(t, 0.1, out.SemanticGravity)
	assert.Equal(t, 0.1, out.InterferenceAmplitude)
	assert.Equal(t, 0.1, out.EnergyDecay)

	// Out-of-range input is pulled back even without a nudge.
	wild := Parameters{SemanticGravity: 5, InterferenceAmplitude: -1, EnergyDecay: 0.5}
	out = Adapt(AdaptationInput{SemanticDensity: 0.5, VisualComplexity: 0.45, CognitiveLoad: 0.8}, wild)
	assert.Equal(t, 1.0, out.SemanticGravity)
	assert.Equal(t, 0.1, out.InterferenceAmplitude)
	assert.Equal(t, 0.5, out.EnergyDecay)
}

func TestAdapt_RepeatedStaysInRange(t *testing.T) {
	p := DefaultParameters()
	for i := 0; i < 100; i++ {
		p = Adapt(AdaptationInput{SemanticDensity: 0, VisualComplexity: 0, CognitiveLoad: 0}, p)
	}
	assert.Equal(t, 1.0, p.SemanticGravity)
	assert.Equal(t, 1.0, p.InterferenceAmplitude)
	assert.Equal(t, 1.0, p.EnergyDecay)
}
