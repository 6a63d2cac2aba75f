// fingerbot-demo drives a simulated fingerbot end to end over an in-memory
// link: session negotiation, a datapoint program push, a host-side program
// run and a simulated button press.
//
// Usage:
//
//	fingerbot-demo [options]
//
// Options:
//
//	-device  Device id used in logs (default: "bf2c5d1bdemo")
//	-key     16-character local key (default: "0123456789abcdef")
//	-product Product id from the fingerbot family (default: "blliqpsj")
//	-program Program steps, e.g. "40/2;80;0/5" (default: "40/1;80;0/1")
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/tuyable/tuyable/pkg/device"
	"github.com/tuyable/tuyable/pkg/session"
	"github.com/tuyable/tuyable/pkg/transport"
	"github.com/tuyable/tuyable/pkg/tuyable"
)

func main() {
	deviceID := flag.String("device", "bf2c5d1bdemo", "device id")
	localKey := flag.String("key", "0123456789abcdef", "16-character local key")
	productID := flag.String("product", "blliqpsj", "product id")
	programText := flag.String("program", "40/1;80;0/1", "program steps")
	flag.Parse()

	cred, err := session.NewCredential(*deviceID, []byte(*localKey))
	if err != nil {
		log.Fatalf("bad credential: %v", err)
	}
	prog, err := device.ParseProgram(*programText)
	if err != nil {
		log.Fatalf("bad program: %v", err)
	}

	pipe := transport.NewPipe()
	defer pipe.Close()

	sim, err := tuyable.NewSimulator(cred, pipe.DeviceEnd(), tuyable.SimulatorConfig{
		ProductID: *productID,
	})
	if err != nil {
		log.Fatalf("simulator: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := tuyable.Open(ctx, cred, pipe.HostEnd(), tuyable.Config{
		ProductID: *productID,
	})
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer d.Close()
	fmt.Printf("session established with %s\n", cred.Redacted())

	d.OnStateUpdate(func(st device.State) {
		if fs, ok := st.(device.FingerbotState); ok {
			fmt.Printf("state: switch=%v mode=%s position=%d\n",
				fs.Switch, fs.Mode, fs.DownPosition)
		}
	})
	d.OnButtonPress(func(pressed bool) {
		fmt.Printf("button press: pressed=%v\n", pressed)
	})

	if err := d.SetMode(ctx, device.ModeProgram); err != nil {
		log.Fatalf("set mode: %v", err)
	}
	if err := d.SetProgram(ctx, prog); err != nil {
		log.Fatalf("store program: %v", err)
	}
	fmt.Printf("stored program %q on device\n", prog.EncodeSteps())

	fmt.Println("running program host-side")
	if err := d.RunProgram(ctx, prog); err != nil {
		log.Fatalf("run program: %v", err)
	}

	if err := sim.PressButton(true); err != nil {
		log.Fatalf("press button: %v", err)
	}
	// Give the unsolicited report a moment to arrive before teardown.
	time.Sleep(100 * time.Millisecond)

	fmt.Println("done")
}
