package device

import (
	"errors"
	"testing"

	"github.com/tuyable/tuyable/pkg/datapoint"
)

func TestParseProgram(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []Step
		wantErr error
	}{
		{
			name: "three steps",
			text: "40/2;80;0/5",
			want: []Step{{40, 2}, {80, 0}, {0, 5}},
		},
		{
			name: "empty program",
			text: "",
			want: nil,
		},
		{
			name: "trailing semicolon",
			text: "40/2;80;",
			want: []Step{{40, 2}, {80, 0}},
		},
		{
			name: "whitespace tolerated",
			text: " 40 / 2 ; 80 ",
			want: []Step{{40, 2}, {80, 0}},
		},
		{
			name: "boundary positions",
			text: "0;100",
			want: []Step{{0, 0}, {100, 0}},
		},
		{
			name:    "position above range",
			text:    "101",
			wantErr: ErrInvalidPosition,
		},
		{
			name:    "position not numeric",
			text:    "abc/2",
			wantErr: ErrInvalidPosition,
		},
		{
			name:    "negative time",
			text:    "50/-1",
			wantErr: ErrInvalidTime,
		},
		{
			name:    "time not numeric",
			text:    "50/x",
			wantErr: ErrInvalidTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := ParseProgram(tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseProgram(%q) error = %v, want %v", tt.text, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProgram(%q) error: %v", tt.text, err)
			}
			if len(prog.Steps) != len(tt.want) {
				t.Fatalf("got %d steps, want %d", len(prog.Steps), len(tt.want))
			}
			for i, s := range tt.want {
				if prog.Steps[i] != s {
					t.Errorf("step %d = %+v, want %+v", i, prog.Steps[i], s)
				}
			}
		})
	}
}

func TestProgramTextSemanticRoundtrip(t *testing.T) {
	// Encoding a parsed program and re-parsing yields the same steps even
	// when the text normalizes (trailing semicolon, zero holds).
	for _, text := range []string{"40/2;80;0/5", "40/2;80;", "", "0/0;100/65535"} {
		first, err := ParseProgram(text)
		if err != nil {
			t.Fatalf("ParseProgram(%q) error: %v", text, err)
		}
		second, err := ParseProgram(first.EncodeSteps())
		if err != nil {
			t.Fatalf("re-parse of %q error: %v", first.EncodeSteps(), err)
		}
		if len(first.Steps) != len(second.Steps) {
			t.Fatalf("%q: step count changed %d -> %d", text, len(first.Steps), len(second.Steps))
		}
		for i := range first.Steps {
			if first.Steps[i] != second.Steps[i] {
				t.Errorf("%q: step %d changed %+v -> %+v", text, i, first.Steps[i], second.Steps[i])
			}
		}
	}
}

func TestProgramDPRoundtrip(t *testing.T) {
	prog := Program{
		Steps:        []Step{{40, 2}, {80, 0}, {0, 5}},
		RepeatCount:  3,
		IdlePosition: 10,
	}
	dp, err := prog.EncodeDP(fingerbotClassic)
	if err != nil {
		t.Fatalf("EncodeDP() error: %v", err)
	}
	if dp.ID != fingerbotClassic.Program {
		t.Errorf("program dp id = %d, want %d", dp.ID, fingerbotClassic.Program)
	}

	got, err := DecodeProgramDP(dp)
	if err != nil {
		t.Fatalf("DecodeProgramDP() error: %v", err)
	}
	if got.RepeatForever != prog.RepeatForever ||
		got.RepeatCount != prog.RepeatCount ||
		got.IdlePosition != prog.IdlePosition ||
		len(got.Steps) != len(prog.Steps) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, prog)
	}
	for i := range prog.Steps {
		if got.Steps[i] != prog.Steps[i] {
			t.Errorf("step %d = %+v, want %+v", i, got.Steps[i], prog.Steps[i])
		}
	}
}

func TestProgramDPRejectsMalformed(t *testing.T) {
	prog := Program{Steps: []Step{{40, 2}}}

	// No program datapoint on the product.
	if _, err := prog.EncodeDP(cubetouch); !errors.Is(err, ErrNoProgramSupport) {
		t.Errorf("EncodeDP() error = %v, want ErrNoProgramSupport", err)
	}

	// Truncated payloads.
	dp, err := prog.EncodeDP(fingerbotClassic)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := dp.Raw()
	if err != nil {
		t.Fatal(err)
	}
	for _, cut := range []int{1, 4, len(raw) - 1} {
		trunc := datapoint.NewRaw(dp.ID, raw[:cut])
		if _, err := DecodeProgramDP(trunc); !errors.Is(err, ErrBadProgramPayload) {
			t.Errorf("truncated to %d bytes: error = %v, want ErrBadProgramPayload", cut, err)
		}
	}

	// Wrong datapoint type.
	if _, err := DecodeProgramDP(datapoint.NewBool(dp.ID, true)); !errors.Is(err, ErrBadProgramPayload) {
		t.Errorf("bool datapoint: error = %v, want ErrBadProgramPayload", err)
	}
}
