package eval

// #region response
// Response is what the response layer reports for one trial. Key is set for
// key responses; Values carries the components of scalar, position and color
// responses.
type Response struct {
	Key    string
	Values []float64
}

// Empty reports whether no answer was given, e.g. the response window
// timed out.
func (r Response) Empty() bool { return r.Key == "" && len(r.Values) == 0 }
// #endregion response

// #region result
// Result is the outcome of scoring one trial.
type Result struct {
	Scored   bool    // false when the section has no response dimension
	Correct  bool
	Distance float64 // |response - expected| in the response's own space
}
// #endregion result

// #region scorer
// Scorer compares responses against trial values within a margin of error.
type Scorer struct {
	dimension int
	margin    float64
}
// #endregion scorer
