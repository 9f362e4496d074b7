package scene

import (
	"math"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

// #region eval
// Eval evaluates a closed-form time function at elapsed seconds t.
func Eval(kind experiment.FuncKind, p [4]float64, t float64) float64 {
	switch kind {
	case experiment.FuncLinear:
		return p[0] + p[1]*t
	case experiment.FuncQuadratic:
		return p[0] + p[1]*t + p[2]*t*t
	case experiment.FuncSine:
		return p[0] + p[1]*math.Sin(2*math.Pi*p[2]*t+p[3])
	case experiment.FuncSquare:
		if math.Sin(2*math.Pi*p[2]*t+p[3]) < 0 {
			return p[0] - p[1]
		}
		return p[0] + p[1]
	case experiment.FuncTriangle:
		return p[0] + p[1]*triangle(p[2]*t+p[3]/(2*math.Pi))
	}
	return p[0]
}

// triangle is a unit triangle wave with period 1 and triangle(0) = 0, rising.
func triangle(x float64) float64 {
	f := x + 0.25
	f -= math.Floor(f)
	return 1 - 4*math.Abs(f-0.5)
}

// At evaluates the curve for trial at elapsed seconds t.
func (c *Curve) At(trial int, t float64) float64 {
	return Eval(c.Func, c.Points[trial], t)
}
// #endregion eval
