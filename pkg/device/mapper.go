package device

import (
	"fmt"

	"github.com/tuyable/tuyable/pkg/datapoint"
)

// State is a decoded per-category view of a device report. Concrete types
// form a closed set matching the supported categories.
type State interface {
	Category() Category
}

// Mapper translates between domain semantics and raw datapoints for one
// category. The set of implementations is closed; dispatch is on the
// category code, not open-ended registration.
type Mapper interface {
	Category() Category

	// Report decodes an inbound datapoint batch into a state view.
	// Unrecognized datapoint ids are collected, not fatal: the device may
	// speak a newer firmware dialect.
	Report(dps []datapoint.Datapoint) (State, []datapoint.Datapoint, error)
}

// NewMapper returns the mapper for a category. Products of sensor-only
// categories share the generic mapper.
func NewMapper(category Category, productID string) (Mapper, error) {
	switch category {
	case CategoryFingerbot:
		product, ok := LookupProduct(category, productID)
		if !ok || product.Fingerbot == nil {
			// Unknown szjqr products still behave like a classic fingerbot.
			product = ProductInfo{Name: "Fingerbot", Fingerbot: &fingerbotClassic}
		}
		return &FingerbotMapper{product: product, info: *product.Fingerbot}, nil
	case CategoryLock:
		return &LockMapper{}, nil
	case CategoryValve:
		return &ValveMapper{}, nil
	case CategoryCO2Sensor, CategorySoilSensor, CategoryWaterBottle, CategoryIrrigation:
		return &GenericMapper{category: category}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
}

// FingerbotMode is the actuator operating mode.
type FingerbotMode uint8

const (
	// ModeClick presses and releases.
	ModeClick FingerbotMode = 0

	// ModeSwitch holds until toggled back.
	ModeSwitch FingerbotMode = 1

	// ModeProgram runs the stored program.
	ModeProgram FingerbotMode = 2
)

// String returns the mode name.
func (m FingerbotMode) String() string {
	switch m {
	case ModeClick:
		return "Click"
	case ModeSwitch:
		return "Switch"
	case ModeProgram:
		return "Program"
	default:
		return "Unknown"
	}
}

// FingerbotState is the decoded state of an actuator product.
type FingerbotState struct {
	Switch           bool
	Mode             FingerbotMode
	UpPosition       uint8
	DownPosition     uint8
	HoldTime         uint16 // seconds
	ReversePositions bool

	// SwitchSeen reports whether this batch carried the switch datapoint;
	// the facade uses it for button-press detection on products with
	// manual control.
	SwitchSeen bool
}

// Category implements State.
func (FingerbotState) Category() Category { return CategoryFingerbot }

// FingerbotMapper maps actuator commands and reports using the product's
// datapoint ids.
type FingerbotMapper struct {
	product ProductInfo
	info    FingerbotInfo
}

// Category implements Mapper.
func (m *FingerbotMapper) Category() Category { return CategoryFingerbot }

// Product returns the resolved product info.
func (m *FingerbotMapper) Product() ProductInfo { return m.product }

// Info returns the product's datapoint ids.
func (m *FingerbotMapper) Info() FingerbotInfo { return m.info }

// SetSwitch builds the datapoints for pressing (true) or releasing the
// actuator.
func (m *FingerbotMapper) SetSwitch(on bool) []datapoint.Datapoint {
	return []datapoint.Datapoint{datapoint.NewBool(m.info.Switch, on)}
}

// SetMode selects the operating mode.
func (m *FingerbotMapper) SetMode(mode FingerbotMode) []datapoint.Datapoint {
	return []datapoint.Datapoint{datapoint.NewEnum8(m.info.Mode, uint8(mode))}
}

// SetPosition moves the arm to a percent position.
func (m *FingerbotMapper) SetPosition(pos uint8) ([]datapoint.Datapoint, error) {
	if pos > MaxPosition {
		return nil, fmt.Errorf("%w: %d", ErrPositionRange, pos)
	}
	return []datapoint.Datapoint{datapoint.NewInt32(m.info.DownPosition, int32(pos))}, nil
}

// SetHoldTime sets how long the arm stays down, in seconds.
func (m *FingerbotMapper) SetHoldTime(seconds uint16) []datapoint.Datapoint {
	return []datapoint.Datapoint{datapoint.NewInt32(m.info.HoldTime, int32(seconds))}
}

// SetProgram stores a program on the device.
func (m *FingerbotMapper) SetProgram(p Program) ([]datapoint.Datapoint, error) {
	dp, err := p.EncodeDP(m.info)
	if err != nil {
		return nil, err
	}
	return []datapoint.Datapoint{dp}, nil
}

// HasManualControl reports whether the product has a physical button.
func (m *FingerbotMapper) HasManualControl() bool {
	return m.info.ManualControl != 0
}

// SwitchDP returns the product's switch datapoint id.
func (m *FingerbotMapper) SwitchDP() uint8 { return m.info.Switch }

// Report implements Mapper.
func (m *FingerbotMapper) Report(dps []datapoint.Datapoint) (State, []datapoint.Datapoint, error) {
	var st FingerbotState
	var unknown []datapoint.Datapoint
	for _, dp := range dps {
		switch dp.ID {
		case m.info.Switch:
			v, err := dp.Bool()
			if err != nil {
				return nil, nil, err
			}
			st.Switch = v
			st.SwitchSeen = true
		case m.info.Mode:
			v, err := dp.Enum8()
			if err != nil {
				return nil, nil, err
			}
			st.Mode = FingerbotMode(v)
		case m.info.UpPosition:
			v, err := dp.Int32()
			if err != nil {
				return nil, nil, err
			}
			st.UpPosition = uint8(v)
		case m.info.DownPosition:
			v, err := dp.Int32()
			if err != nil {
				return nil, nil, err
			}
			st.DownPosition = uint8(v)
		case m.info.HoldTime:
			v, err := dp.Int32()
			if err != nil {
				return nil, nil, err
			}
			st.HoldTime = uint16(v)
		case m.info.ReversePositions:
			v, err := dp.Bool()
			if err != nil {
				return nil, nil, err
			}
			st.ReversePositions = v
		default:
			unknown = append(unknown, dp)
		}
	}
	return st, unknown, nil
}

// Lock datapoint ids shared across the ms category.
const (
	dpLockState   = 1 // Bool: true when locked
	dpLockUnlock  = 6 // Bool: write true to unlock
	dpLockBattery = 8 // Int32: percent
)

// LockState is the decoded state of a smart lock.
type LockState struct {
	Locked  bool
	Battery int32
}

// Category implements State.
func (LockState) Category() Category { return CategoryLock }

// LockMapper maps lock commands and reports.
type LockMapper struct{}

// Category implements Mapper.
func (*LockMapper) Category() Category { return CategoryLock }

// Unlock builds the unlock command datapoints.
func (*LockMapper) Unlock() []datapoint.Datapoint {
	return []datapoint.Datapoint{datapoint.NewBool(dpLockUnlock, true)}
}

// Report implements Mapper.
func (*LockMapper) Report(dps []datapoint.Datapoint) (State, []datapoint.Datapoint, error) {
	var st LockState
	var unknown []datapoint.Datapoint
	for _, dp := range dps {
		switch dp.ID {
		case dpLockState:
			v, err := dp.Bool()
			if err != nil {
				return nil, nil, err
			}
			st.Locked = v
		case dpLockBattery:
			v, err := dp.Int32()
			if err != nil {
				return nil, nil, err
			}
			st.Battery = v
		default:
			unknown = append(unknown, dp)
		}
	}
	return st, unknown, nil
}

// Valve datapoint ids shared across the wk category. Temperatures are in
// tenths of a degree.
const (
	dpValveTarget  = 2 // Int32: target temperature
	dpValveCurrent = 3 // Int32: measured temperature
	dpValveMode    = 4 // Enum8: operating mode
)

// ValveState is the decoded state of a radiator valve.
type ValveState struct {
	TargetTemp  int32 // tenths of a degree
	CurrentTemp int32 // tenths of a degree
	Mode        uint8
}

// Category implements State.
func (ValveState) Category() Category { return CategoryValve }

// ValveMapper maps valve commands and reports.
type ValveMapper struct{}

// Category implements Mapper.
func (*ValveMapper) Category() Category { return CategoryValve }

// SetTargetTemp builds the target temperature command, in tenths of a
// degree.
func (*ValveMapper) SetTargetTemp(tenths int32) []datapoint.Datapoint {
	return []datapoint.Datapoint{datapoint.NewInt32(dpValveTarget, tenths)}
}

// Report implements Mapper.
func (*ValveMapper) Report(dps []datapoint.Datapoint) (State, []datapoint.Datapoint, error) {
	var st ValveState
	var unknown []datapoint.Datapoint
	for _, dp := range dps {
		switch dp.ID {
		case dpValveTarget:
			v, err := dp.Int32()
			if err != nil {
				return nil, nil, err
			}
			st.TargetTemp = v
		case dpValveCurrent:
			v, err := dp.Int32()
			if err != nil {
				return nil, nil, err
			}
			st.CurrentTemp = v
		case dpValveMode:
			v, err := dp.Enum8()
			if err != nil {
				return nil, nil, err
			}
			st.Mode = v
		default:
			unknown = append(unknown, dp)
		}
	}
	return st, unknown, nil
}

// GenericState is the raw passthrough view for sensor-only categories.
type GenericState struct {
	DeviceCategory Category
	Datapoints     []datapoint.Datapoint
}

// Category implements State.
func (s GenericState) Category() Category { return s.DeviceCategory }

// GenericMapper passes reports through untyped. Used for categories whose
// products are read-only sensors.
type GenericMapper struct {
	category Category
}

// Category implements Mapper.
func (m *GenericMapper) Category() Category { return m.category }

// Report implements Mapper.
func (m *GenericMapper) Report(dps []datapoint.Datapoint) (State, []datapoint.Datapoint, error) {
	return GenericState{DeviceCategory: m.category, Datapoints: dps}, nil, nil
}
