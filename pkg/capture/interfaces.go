package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/gousb"
)

// InterfaceKind categorizes capture sources.
type InterfaceKind string

const (
	InterfaceKindUSB    InterfaceKind = "usb"
	InterfaceKindSerial InterfaceKind = "serial"
	InterfaceKindSim    InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected probe or port.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Path        string // serial device node
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	switch {
	case i.Description != "" && i.Path != "":
		return fmt.Sprintf("%s (%s)", i.Description, i.Path)
	case i.Description != "":
		return i.Description
	case i.Path != "":
		return i.Path
	}
	return fmt.Sprintf("%s (%04X:%04X)", i.Kind, i.VendorID, i.ProductID)
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

const (
	// The probe firmware enumerates as an STM32 virtual COM port.
	VendorIDSTM32     = 0x0483
	ProductIDProbeVCP = 0x5740
)

var knownProbes = []knownUSBDevice{
	{VendorID: VendorIDSTM32, ProductID: ProductIDProbeVCP, Description: "STM32 logic probe (VCP)"},
	{VendorID: 0x2e8a, ProductID: 0x000a, Description: "Raspberry Pi Pico logic probe (CDC)"},
}

// serialPatterns are the device nodes serial-attached probes show up as.
var serialPatterns = []string{
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
	"/dev/tty.usbmodem*",
	"/dev/tty.usbserial*",
}

// DiscoverInterfaces enumerates known USB probes and serial ports. It always
// returns the simulator entry so capture can be exercised without hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if info, ok := classifyUSBDevice(desc); ok {
			results = append(results, info)
		}
		return false
	})
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, fmt.Errorf("capture: usb enumeration: %w", err)
	}

	ports, err := SerialPorts()
	if err != nil {
		return results, err
	}
	for _, p := range ports {
		results = append(results, InterfaceInfo{Kind: InterfaceKindSerial, Description: "Serial port", Path: p})
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})
	return results, nil
}

// SerialPorts lists device nodes that look like USB serial adapters.
func SerialPorts() ([]string, error) {
	var out []string
	for _, pattern := range serialPatterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("capture: glob %s: %w", pattern, err)
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (InterfaceInfo, bool) {
	for _, known := range knownProbes {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return InterfaceInfo{
				Kind:        InterfaceKindUSB,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return InterfaceInfo{}, false
}
