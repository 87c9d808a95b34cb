package blipkit

// Instrument is a set of envelope sequences applied to a track on attack. Each
// sequence is stepped once per instrument divider tick; a sequence without
// values leaves the corresponding track parameter alone.
type Instrument struct {
	Name      string   `yaml:",omitempty"`
	Volume    Sequence `yaml:",omitempty"` // 0 .. MaxVolume, scales the track volume
	Panning   Sequence `yaml:",omitempty"` // -MaxVolume .. MaxVolume, added to the track panning
	Pitch     Sequence `yaml:",omitempty"` // cents, added to the note
	DutyCycle Sequence `yaml:",omitempty"` // replaces the duty cycle of square waves
}

// Sequence is a list of values with an optional sustain loop. While the note
// is held, the sequence loops over [SustainOffset, SustainOffset +
// SustainLength); after release it continues past the loop and holds its last
// value.
type Sequence struct {
	Values        []int `yaml:",flow"`
	SustainOffset int   `yaml:",omitempty"`
	SustainLength int   `yaml:",omitempty"`
}

// Copy makes a deep copy of an Instrument.
func (instr *Instrument) Copy() Instrument {
	return Instrument{
		Name:      instr.Name,
		Volume:    instr.Volume.Copy(),
		Panning:   instr.Panning.Copy(),
		Pitch:     instr.Pitch.Copy(),
		DutyCycle: instr.DutyCycle.Copy(),
	}
}

// Copy makes a deep copy of a Sequence.
func (s Sequence) Copy() Sequence {
	values := make([]int, len(s.Values))
	copy(values, s.Values)
	return Sequence{Values: values, SustainOffset: s.SustainOffset, SustainLength: s.SustainLength}
}

// Len returns the number of values in the sequence.
func (s Sequence) Len() int {
	return len(s.Values)
}

// Get returns the value at index; indices past the end return the last value
// and an empty sequence returns 0.
func (s Sequence) Get(index int) int {
	if len(s.Values) == 0 {
		return 0
	}
	if index < 0 {
		index = 0
	}
	if index >= len(s.Values) {
		return s.Values[len(s.Values)-1]
	}
	return s.Values[index]
}

// Next returns the index following index. sustained tells if the note is
// still held, in which case the sustain loop is taken.
func (s Sequence) Next(index int, sustained bool) int {
	if sustained && s.SustainLength > 0 {
		end := s.SustainOffset + s.SustainLength
		if index+1 >= end && index < end {
			return s.SustainOffset
		}
	}
	if index+1 >= len(s.Values) {
		return len(s.Values)
	}
	return index + 1
}

// Ended reports whether index is past the last value.
func (s Sequence) Ended(index int) bool {
	return index >= len(s.Values)
}
