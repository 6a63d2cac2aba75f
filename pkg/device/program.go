package device

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/tuyable/tuyable/pkg/datapoint"
)

// MaxPosition is the upper bound of an actuator position, in percent.
const MaxPosition = 100

// Step is one program step: move to a position and hold it. A zero hold
// executes without a pause before the next step.
type Step struct {
	Position uint8
	Hold     uint16 // seconds
}

// Program is an ordered, repeatable sequence of actuator steps.
// After the final step the sequence restarts if RepeatForever is set;
// otherwise it repeats RepeatCount additional times and the actuator moves
// to IdlePosition.
type Program struct {
	Steps         []Step
	RepeatForever bool
	RepeatCount   uint16
	IdlePosition  uint8
}

// Validate checks every position in the program.
func (p Program) Validate() error {
	for i, s := range p.Steps {
		if s.Position > MaxPosition {
			return fmt.Errorf("%w: step %d position %d", ErrInvalidPosition, i, s.Position)
		}
	}
	if p.IdlePosition > MaxPosition {
		return fmt.Errorf("%w: idle position %d", ErrInvalidPosition, p.IdlePosition)
	}
	return nil
}

// ParseProgram parses the program step text format:
//
//	"40/2;80;0/5"
//
// A program is a semicolon-separated list of steps; each step is a position
// (0–100) optionally followed by "/" and a hold time in seconds. Empty
// trailing segments are ignored, so a trailing semicolon is accepted. An
// entirely empty string is a valid program with no steps.
func ParseProgram(text string) (Program, error) {
	var prog Program
	for _, seg := range strings.Split(text, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		posText, holdText, hasHold := strings.Cut(seg, "/")
		pos, err := strconv.ParseUint(strings.TrimSpace(posText), 10, 8)
		if err != nil || pos > MaxPosition {
			return Program{}, fmt.Errorf("%w: %q", ErrInvalidPosition, posText)
		}

		var hold uint64
		if hasHold {
			hold, err = strconv.ParseUint(strings.TrimSpace(holdText), 10, 16)
			if err != nil {
				return Program{}, fmt.Errorf("%w: %q", ErrInvalidTime, holdText)
			}
		}
		prog.Steps = append(prog.Steps, Step{Position: uint8(pos), Hold: uint16(hold)})
	}
	return prog, nil
}

// EncodeSteps renders the step list in the text format ParseProgram accepts.
// A zero hold omits the "/time" part; parse∘encode preserves the step list
// exactly even where the text differs from the input (normalized trailing
// semicolons and whitespace).
func (p Program) EncodeSteps() string {
	parts := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		if s.Hold == 0 {
			parts[i] = strconv.Itoa(int(s.Position))
		} else {
			parts[i] = fmt.Sprintf("%d/%d", s.Position, s.Hold)
		}
	}
	return strings.Join(parts, ";")
}

// Program datapoint wire layout:
//
//	repeat flag (1) | repeat count (2 BE) | idle position (1) |
//	step count (1) | steps: position (1) | hold seconds (2 BE)
const (
	progHeaderSize = 5
	progStepSize   = 3
	repeatForever  = 0x01
)

// EncodeDP packs the program into the product's program datapoint.
func (p Program) EncodeDP(info FingerbotInfo) (datapoint.Datapoint, error) {
	if info.Program == 0 {
		return datapoint.Datapoint{}, ErrNoProgramSupport
	}
	if err := p.Validate(); err != nil {
		return datapoint.Datapoint{}, err
	}
	if len(p.Steps) > 0xFF {
		return datapoint.Datapoint{}, fmt.Errorf("%w: %d steps", ErrBadProgramPayload, len(p.Steps))
	}

	b := make([]byte, 0, progHeaderSize+progStepSize*len(p.Steps))
	var flag byte
	if p.RepeatForever {
		flag = repeatForever
	}
	b = append(b, flag)
	b = binary.BigEndian.AppendUint16(b, p.RepeatCount)
	b = append(b, p.IdlePosition, byte(len(p.Steps)))
	for _, s := range p.Steps {
		b = append(b, s.Position)
		b = binary.BigEndian.AppendUint16(b, s.Hold)
	}
	return datapoint.NewRaw(info.Program, b), nil
}

// DecodeProgramDP unpacks a program datapoint.
func DecodeProgramDP(dp datapoint.Datapoint) (Program, error) {
	raw, err := dp.Raw()
	if err != nil {
		return Program{}, fmt.Errorf("%w: %v", ErrBadProgramPayload, err)
	}
	if len(raw) < progHeaderSize {
		return Program{}, fmt.Errorf("%w: %d bytes", ErrBadProgramPayload, len(raw))
	}

	prog := Program{
		RepeatForever: raw[0]&repeatForever != 0,
		RepeatCount:   binary.BigEndian.Uint16(raw[1:3]),
		IdlePosition:  raw[3],
	}
	n := int(raw[4])
	if len(raw) != progHeaderSize+progStepSize*n {
		return Program{}, fmt.Errorf("%w: %d steps declared, %d bytes", ErrBadProgramPayload, n, len(raw))
	}
	for i := 0; i < n; i++ {
		off := progHeaderSize + progStepSize*i
		prog.Steps = append(prog.Steps, Step{
			Position: raw[off],
			Hold:     binary.BigEndian.Uint16(raw[off+1 : off+3]),
		})
	}
	return prog, prog.Validate()
}
