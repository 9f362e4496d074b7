package results

import (
	"strconv"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/format"
	"github.com/danielpatrickdp/stimsched/internal/run"
)

var axes = []string{"_x", "_y", "_z"}

// #region recorder
// Recorder lays out the result columns of one section: trial, block (when
// the section is block-controlled), the end frame of each scene, every
// binding component, the response and trial-value components and the
// correctness flag when the section scores responses.
type Recorder struct {
	titles     []string
	blocks     bool
	scenes     int
	bindings   []int // component count per binding
	response   int
	trialValue int
	scored     bool
}

// NewRecorder derives the column layout from a compiled section.
func NewRecorder(sr *run.SectionRun) *Recorder {
	ts := sr.Schedule
	rc := &Recorder{
		blocks: ts.Blocks != nil,
		scenes: len(sr.Scenes),
		scored: sr.Section.Response.Dimension > 0,
	}
	rc.titles = append(rc.titles, "trial")
	if rc.blocks {
		rc.titles = append(rc.titles, "block")
	}
	for _, sc := range sr.Section.Scenes {
		rc.titles = append(rc.titles, sc.Name+"_frames")
	}
	for _, b := range ts.Bindings {
		n := b.Dimension()
		rc.bindings = append(rc.bindings, n)
		rc.titles = appendComponents(rc.titles, b.Name, n)
	}
	for _, sc := range sr.Section.Scenes {
		if sc.Response != nil && sc.Response.Type.Dimension() > rc.response {
			rc.response = sc.Response.Type.Dimension()
		}
	}
	rc.titles = appendComponents(rc.titles, "response", rc.response)
	if len(ts.TrialValues) > 0 {
		rc.trialValue = ts.TrialValues[0].Dimension()
	}
	rc.titles = appendComponents(rc.titles, "trial_value", rc.trialValue)
	if rc.scored {
		rc.titles = append(rc.titles, "correct")
	}
	return rc
}

func appendComponents(titles []string, name string, n int) []string {
	if n == 1 {
		return append(titles, name)
	}
	for i := 0; i < n; i++ {
		titles = append(titles, name+axes[i])
	}
	return titles
}

// Titles returns the column titles.
func (rc *Recorder) Titles() []string { return rc.titles }

// Row renders one trial record. Unanswered trials leave the response
// columns empty.
func (rc *Recorder) Row(rec run.TrialRecord) []string {
	row := make([]string, 0, len(rc.titles))
	row = append(row, strconv.Itoa(rec.Trial))
	if rc.blocks {
		row = append(row, strconv.Itoa(rec.Block))
	}
	for i := 0; i < rc.scenes; i++ {
		row = append(row, strconv.Itoa(rec.Frames[i]))
	}
	for i, n := range rc.bindings {
		row = appendValue(row, rec.Values[i], n)
	}
	if rec.Responded {
		row = appendValue(row, rec.Response, rc.response)
	} else {
		for i := 0; i < rc.response; i++ {
			row = append(row, "")
		}
	}
	row = appendValue(row, rec.TrialValue, rc.trialValue)
	if rc.scored {
		if rec.Result.Correct {
			row = append(row, "1")
		} else {
			row = append(row, "0")
		}
	}
	return row
}

func appendValue(row []string, v experiment.Value, n int) []string {
	for i := 0; i < n; i++ {
		if v.Numeric() {
			row = append(row, format.Float(v.Component(i)))
		} else {
			row = append(row, strconv.Itoa(v.ID))
		}
	}
	return row
}
// #endregion recorder

// #region export
// Table renders records as a table in mode m.
func (rc *Recorder) Table(records []run.TrialRecord, m format.Mode) *format.Table {
	t := format.NewTable(m)
	t.Header(rc.titles...)
	for _, rec := range records {
		row := rc.Row(rec)
		vals := make([]any, len(row))
		for i, s := range row {
			vals[i] = s
		}
		t.Row(vals...)
	}
	return t
}

// CSV renders every trial recorded in section sr.
func CSV(sr *run.SectionRun) string {
	return NewRecorder(sr).Table(sr.Records, format.CSV).String()
}
// #endregion export
