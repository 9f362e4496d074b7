package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

// #region interpret
// Interpret turns a raw response into a value of the scene's response type.
// Key responses are mapped through the scene's key table.
func Interpret(resp Response, spec *experiment.ResponseSpec) (experiment.Value, error) {
	if spec == nil || spec.Type == experiment.ResponseNone {
		return experiment.Value{}, fmt.Errorf("interpret response: scene takes no response")
	}
	if spec.Type == experiment.ResponseKey {
		v, ok := spec.Keys[resp.Key]
		if !ok {
			return experiment.Value{}, fmt.Errorf("interpret response: unknown key %q", resp.Key)
		}
		return experiment.Scalar(v), nil
	}
	if want := spec.Type.Dimension(); len(resp.Values) != want {
		return experiment.Value{}, fmt.Errorf("interpret response: %s response needs %d components, got %d",
			spec.Type, want, len(resp.Values))
	}
	switch spec.Type {
	case experiment.ResponsePosition:
		return experiment.Vec2(resp.Values[0], resp.Values[1]), nil
	case experiment.ResponseColor:
		return experiment.Vec3(resp.Values[0], resp.Values[1], resp.Values[2]), nil
	}
	return experiment.Scalar(resp.Values[0]), nil
}
// #endregion interpret

// #region score
// NewScorer builds a scorer for a section's response rule.
func NewScorer(rule experiment.ResponseRule) *Scorer {
	return &Scorer{dimension: rule.Dimension, margin: rule.Margin}
}

// Score reports whether got lies within the margin of expected: absolute
// difference for scalars, Euclidean distance for 2-D and 3-D responses.
func (s *Scorer) Score(got, expected experiment.Value) (Result, error) {
	if s.dimension == 0 {
		return Result{}, nil
	}
	if got.Dimension() != s.dimension || !got.Numeric() {
		return Result{}, fmt.Errorf("score response: got dimension %d, section scores %d", got.Dimension(), s.dimension)
	}
	var sum float64
	for i := 0; i < s.dimension; i++ {
		d := got.Component(i) - expected.Component(i)
		sum += d * d
	}
	dist := math.Sqrt(sum)
	return Result{Scored: true, Correct: dist <= s.margin, Distance: dist}, nil
}
// #endregion score
