package growth

import "math"

// Adaptation bounds and thresholds.
const (
	minParameter = 0.1
	maxParameter = 1.0

	lowDensity     = 0.3
	highDensity    = 0.7
	lowComplexity  = 0.3
	highComplexity = 0.6
	lowLoad        = 0.5
	highLoad       = 1.2
	strongIncrease = 1.10
	mildIncrease   = 1.05
	mildDecrease   = 0.95
	strongDecrease = 0.90
)

// AdaptationInput is the state sampled by the adaptation pass.
type AdaptationInput struct {
	SemanticDensity  float64 // non-neutral connections per node
	VisualComplexity float64 // mean connection curvature
	CognitiveLoad    float64 // field aggregate, ~[0, 2]
}

// Adapt nudges semantic gravity, interference amplitude and energy decay by
// 5-10% and clamps each to [0.1, 1.0]. Other parameters pass through.
//
// Feedback rules:
//   - sparse semantics pull harder, dense semantics relax gravity
//   - straight growth gets more interference, tangled growth less
//   - overloaded growth decays slower, idle growth decays faster
func Adapt(in AdaptationInput, p Parameters) Parameters {
	switch {
	case in.SemanticDensity < lowDensity:
		p.SemanticGravity *= strongIncrease
	case in.SemanticDensity > highDensity:
		p.SemanticGravity *= mildDecrease
	}

	switch {
	case in.VisualComplexity < lowComplexity:
		p.InterferenceAmplitude *= strongIncrease
	case in.VisualComplexity > highComplexity:
		p.InterferenceAmplitude *= strongDecrease
	}

	switch {
	case in.CognitiveLoad > highLoad:
		p.EnergyDecay *= strongDecrease
	case in.CognitiveLoad < lowLoad:
		p.EnergyDecay *= mildIncrease
	}

	p.SemanticGravity = clampParameter(p.SemanticGravity)
	p.InterferenceAmplitude = clampParameter(p.InterferenceAmplitude)
	p.EnergyDecay = clampParameter(p.EnergyDecay)
	return p
}

func clampParameter(v float64) float64 {
	if math.IsNaN(v) {
		return minParameter
	}
	return math.Max(minParameter, math.Min(maxParameter, v))
}
