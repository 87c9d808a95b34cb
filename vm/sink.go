package vm

import "github.com/vsariola/blipkit"

// Sink receives the parameter changes and gate transitions of a track
// program. The interpreter never reads anything back from it.
type Sink interface {
	Attack(note int)
	Release()
	Mute()
	// SetNote changes the sounding note without retriggering, e.g. for
	// arpeggios.
	SetNote(note int)
	SetVolume(volume int)
	SetMasterVolume(volume int)
	SetPanning(panning int)
	SetPitch(cents int)
	SetDutyCycle(dutyCycle int)
	SetPhaseWrap(phaseWrap int)
	// SetInstrument receives nil to remove the instrument.
	SetInstrument(instr *blipkit.Instrument)
	SetWaveform(waveform blipkit.Waveform)
	// SetCustomWaveform receives an entry of the waveform table, or nil for a
	// missing entry.
	SetCustomWaveform(data *blipkit.WaveformData)
	SetEffect(effect blipkit.Effect, params [3]int)
}
