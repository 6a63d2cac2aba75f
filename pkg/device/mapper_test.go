package device

import (
	"errors"
	"testing"

	"github.com/tuyable/tuyable/pkg/datapoint"
)

func TestNewMapperDispatch(t *testing.T) {
	tests := []struct {
		category Category
		wantErr  bool
	}{
		{CategoryFingerbot, false},
		{CategoryLock, false},
		{CategoryValve, false},
		{CategoryCO2Sensor, false},
		{CategorySoilSensor, false},
		{CategoryWaterBottle, false},
		{CategoryIrrigation, false},
		{Category("mcbj"), true},
		{Category(""), true},
	}

	for _, tt := range tests {
		m, err := NewMapper(tt.category, "")
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownCategory) {
				t.Errorf("NewMapper(%q) error = %v, want ErrUnknownCategory", tt.category, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewMapper(%q) error: %v", tt.category, err)
			continue
		}
		if m.Category() != tt.category {
			t.Errorf("NewMapper(%q).Category() = %q", tt.category, m.Category())
		}
	}
}

func TestNewMapperUnknownFingerbotFallsBack(t *testing.T) {
	m, err := NewMapper(CategoryFingerbot, "nosuchpid")
	if err != nil {
		t.Fatalf("NewMapper() error: %v", err)
	}
	fb, ok := m.(*FingerbotMapper)
	if !ok {
		t.Fatalf("NewMapper() = %T, want *FingerbotMapper", m)
	}
	if fb.Info() != fingerbotClassic {
		t.Errorf("unknown product info = %+v, want classic map", fb.Info())
	}
}

func TestFingerbotMapperCommands(t *testing.T) {
	m, err := NewMapper(CategoryFingerbot, "blliqpsj") // Fingerbot Plus
	if err != nil {
		t.Fatal(err)
	}
	fb := m.(*FingerbotMapper)

	if !fb.HasManualControl() {
		t.Error("Fingerbot Plus should have manual control")
	}
	if fb.SwitchDP() != 2 {
		t.Errorf("SwitchDP() = %d, want 2", fb.SwitchDP())
	}

	dps := fb.SetSwitch(true)
	if len(dps) != 1 || dps[0].ID != 2 {
		t.Fatalf("SetSwitch() = %+v", dps)
	}
	if v, err := dps[0].Bool(); err != nil || !v {
		t.Errorf("SetSwitch() value = %v, %v", v, err)
	}

	dps = fb.SetMode(ModeProgram)
	if len(dps) != 1 || dps[0].ID != 8 {
		t.Fatalf("SetMode() = %+v", dps)
	}
	if v, err := dps[0].Enum8(); err != nil || v != uint8(ModeProgram) {
		t.Errorf("SetMode() value = %v, %v", v, err)
	}

	dps, err = fb.SetPosition(80)
	if err != nil {
		t.Fatalf("SetPosition() error: %v", err)
	}
	if len(dps) != 1 || dps[0].ID != 9 {
		t.Fatalf("SetPosition() = %+v", dps)
	}
	if _, err := fb.SetPosition(101); !errors.Is(err, ErrPositionRange) {
		t.Errorf("SetPosition(101) error = %v, want ErrPositionRange", err)
	}

	dps = fb.SetHoldTime(3)
	if len(dps) != 1 || dps[0].ID != 10 {
		t.Fatalf("SetHoldTime() = %+v", dps)
	}

	dps, err = fb.SetProgram(Program{Steps: []Step{{40, 2}}})
	if err != nil {
		t.Fatalf("SetProgram() error: %v", err)
	}
	if len(dps) != 1 || dps[0].ID != 121 {
		t.Fatalf("SetProgram() = %+v", dps)
	}
}

func TestCubetouchUsesOwnDatapointIDs(t *testing.T) {
	m, err := NewMapper(CategoryFingerbot, "3yqdo5yt")
	if err != nil {
		t.Fatal(err)
	}
	fb := m.(*FingerbotMapper)

	if fb.SwitchDP() != 1 {
		t.Errorf("SwitchDP() = %d, want 1", fb.SwitchDP())
	}
	if fb.HasManualControl() {
		t.Error("CubeTouch should not report manual control")
	}
	if _, err := fb.SetProgram(Program{}); !errors.Is(err, ErrNoProgramSupport) {
		t.Errorf("SetProgram() error = %v, want ErrNoProgramSupport", err)
	}
}

func TestFingerbotMapperReport(t *testing.T) {
	m, err := NewMapper(CategoryFingerbot, "ltak7e1p") // classic
	if err != nil {
		t.Fatal(err)
	}

	st, unknown, err := m.Report([]datapoint.Datapoint{
		datapoint.NewBool(2, true),
		datapoint.NewEnum8(8, uint8(ModeSwitch)),
		datapoint.NewInt32(9, 80),
		datapoint.NewInt32(15, 20),
		datapoint.NewInt32(10, 3),
		datapoint.NewBool(11, true),
		datapoint.NewInt32(200, 42), // unrecognized
	})
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	fs, ok := st.(FingerbotState)
	if !ok {
		t.Fatalf("Report() state = %T, want FingerbotState", st)
	}
	if !fs.Switch || !fs.SwitchSeen {
		t.Errorf("switch = %v seen = %v, want both true", fs.Switch, fs.SwitchSeen)
	}
	if fs.Mode != ModeSwitch {
		t.Errorf("mode = %v, want %v", fs.Mode, ModeSwitch)
	}
	if fs.DownPosition != 80 || fs.UpPosition != 20 {
		t.Errorf("positions = %d/%d, want 80/20", fs.DownPosition, fs.UpPosition)
	}
	if fs.HoldTime != 3 {
		t.Errorf("hold time = %d, want 3", fs.HoldTime)
	}
	if !fs.ReversePositions {
		t.Error("reverse positions not set")
	}
	if len(unknown) != 1 || unknown[0].ID != 200 {
		t.Errorf("unknown = %+v, want single dp 200", unknown)
	}

	// A batch without the switch dp leaves SwitchSeen false.
	st, _, err = m.Report([]datapoint.Datapoint{datapoint.NewInt32(10, 5)})
	if err != nil {
		t.Fatal(err)
	}
	if st.(FingerbotState).SwitchSeen {
		t.Error("SwitchSeen set without switch datapoint")
	}

	// Type mismatch on a mapped dp is fatal.
	if _, _, err := m.Report([]datapoint.Datapoint{datapoint.NewInt32(2, 1)}); err == nil {
		t.Error("Report() accepted wrong-typed switch datapoint")
	}
}

func TestLockMapper(t *testing.T) {
	m := &LockMapper{}

	dps := m.Unlock()
	if len(dps) != 1 || dps[0].ID != dpLockUnlock {
		t.Fatalf("Unlock() = %+v", dps)
	}

	st, unknown, err := m.Report([]datapoint.Datapoint{
		datapoint.NewBool(dpLockState, true),
		datapoint.NewInt32(dpLockBattery, 85),
		datapoint.NewBool(99, false),
	})
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	ls := st.(LockState)
	if !ls.Locked || ls.Battery != 85 {
		t.Errorf("state = %+v, want locked with battery 85", ls)
	}
	if len(unknown) != 1 || unknown[0].ID != 99 {
		t.Errorf("unknown = %+v", unknown)
	}
}

func TestValveMapper(t *testing.T) {
	m := &ValveMapper{}

	dps := m.SetTargetTemp(215)
	if len(dps) != 1 || dps[0].ID != dpValveTarget {
		t.Fatalf("SetTargetTemp() = %+v", dps)
	}

	st, _, err := m.Report([]datapoint.Datapoint{
		datapoint.NewInt32(dpValveTarget, 215),
		datapoint.NewInt32(dpValveCurrent, 198),
		datapoint.NewEnum8(dpValveMode, 1),
	})
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	vs := st.(ValveState)
	if vs.TargetTemp != 215 || vs.CurrentTemp != 198 || vs.Mode != 1 {
		t.Errorf("state = %+v", vs)
	}
}

func TestGenericMapperPassthrough(t *testing.T) {
	m, err := NewMapper(CategoryCO2Sensor, "59s19z5m")
	if err != nil {
		t.Fatal(err)
	}
	in := []datapoint.Datapoint{
		datapoint.NewInt32(2, 612),
		datapoint.NewEnum8(1, 0),
	}
	st, unknown, err := m.Report(in)
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if unknown != nil {
		t.Errorf("generic mapper reported unknown dps: %+v", unknown)
	}
	gs := st.(GenericState)
	if gs.Category() != CategoryCO2Sensor || len(gs.Datapoints) != 2 {
		t.Errorf("state = %+v", gs)
	}
}

func TestLookupProduct(t *testing.T) {
	p, ok := LookupProduct(CategoryFingerbot, "yiihr7zh")
	if !ok {
		t.Fatal("known product not found")
	}
	if p.Name != "Fingerbot Plus" || p.Manufacturer != DefaultManufacturer {
		t.Errorf("product = %+v", p)
	}
	if p.Fingerbot == nil || p.Fingerbot.ManualControl != 17 {
		t.Errorf("fingerbot info = %+v", p.Fingerbot)
	}

	if _, ok := LookupProduct(CategoryFingerbot, "nosuchpid"); ok {
		t.Error("unlisted product id resolved without category fallback")
	}
	if _, ok := LookupProduct(Category("mcbj"), "x"); ok {
		t.Error("unknown category resolved")
	}

	if !KnownCategory(CategoryLock) || KnownCategory(Category("mcbj")) {
		t.Error("KnownCategory mismatch")
	}
}
