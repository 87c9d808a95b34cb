package blipkit

import "fmt"

// Attr names a configurable value of a context or a unit.
type Attr int

const (
	AttrSampleRate Attr = iota
	AttrNumChannels
	AttrClockPeriod
	AttrTime
	AttrArpeggioDivider
	AttrEffectDivider
	AttrInstrumentDivider
)

var attrNames = [...]string{
	AttrSampleRate:        "samplerate",
	AttrNumChannels:       "numchannels",
	AttrClockPeriod:       "clockperiod",
	AttrTime:              "time",
	AttrArpeggioDivider:   "arpeggiodivider",
	AttrEffectDivider:     "effectdivider",
	AttrInstrumentDivider: "instrumentdivider",
}

func (a Attr) String() string {
	if a < 0 || int(a) >= len(attrNames) {
		return fmt.Sprintf("attr(%d)", int(a))
	}
	return attrNames[a]
}

// IsDivider reports whether the attribute is one of the per-track divider
// values.
func (a Attr) IsDivider() bool {
	return a == AttrArpeggioDivider || a == AttrEffectDivider || a == AttrInstrumentDivider
}

// AttrSetter is implemented by anything that accepts integer attributes, e.g.
// tracks accepting divider values broadcast by the context.
type AttrSetter interface {
	SetAttr(attr Attr, value int) error
}
