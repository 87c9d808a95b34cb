package vm

type (
	// Program is a compiled track program. Code is never modified after
	// assembly, so one Program can be shared by any number of interpreters.
	Program struct {
		// Code is the opcode stream: each instruction is an opcode word followed
		// by its operand words. Call and jump targets are absolute word
		// addresses into Code.
		Code []int32

		// Groups maps the names of the subroutine entry points to their
		// addresses.
		Groups map[string]int `yaml:",omitempty"`

		// Labels maps jump labels to their addresses.
		Labels map[string]int `yaml:",omitempty"`
	}
)

// GroupName returns the name of the group at addr, if any.
func (p *Program) GroupName(addr int) (string, bool) {
	return nameAt(p.Groups, addr)
}

// LabelName returns the name of the label at addr, if any.
func (p *Program) LabelName(addr int) (string, bool) {
	return nameAt(p.Labels, addr)
}

// nameAt returns the alphabetically first name bound to addr.
func nameAt(names map[string]int, addr int) (ret string, ok bool) {
	for name, a := range names {
		if a == addr && (!ok || name < ret) {
			ret, ok = name, true
		}
	}
	return ret, ok
}
