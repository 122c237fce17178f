package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gousb"
	"github.com/tarm/serial"
)

// Source delivers the raw packet stream of a probe.
type Source interface {
	Info() InterfaceInfo
	// Read blocks until data arrives, ctx is done or the stream ends
	// (io.EOF).
	Read(ctx context.Context, p []byte) (int, error)
	Close() error
}

// ErrNotImplemented is returned for interface kinds that cannot be opened.
var ErrNotImplemented = errors.New("capture: not implemented")

const (
	// DefaultSerialBaud is the probe firmware's VCP line rate.
	DefaultSerialBaud = 115200
	serialPollTimeout = 100 * time.Millisecond
	usbReadTimeout    = 5 * time.Second
)

// OpenSource opens a discovered interface. The simulator cannot be opened
// this way; use NewSimSource.
func OpenSource(info InterfaceInfo) (Source, error) {
	switch info.Kind {
	case InterfaceKindUSB:
		return OpenUSB(info.VendorID, info.ProductID)
	case InterfaceKindSerial:
		return OpenSerial(info.Path, DefaultSerialBaud)
	}
	return nil, fmt.Errorf("%w: open %s", ErrNotImplemented, info.Kind)
}

// USBSource reads the probe's CDC data interface directly through libusb.
type USBSource struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	epIn *gousb.InEndpoint

	info InterfaceInfo
}

// OpenUSB claims the bulk IN endpoint of the probe identified by vid:pid.
func OpenUSB(vid, pid uint16) (*USBSource, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("capture: usb: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("capture: usb: device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}
	// The CDC ACM kernel driver owns the data interface on Linux.
	_ = dev.SetAutoDetach(true)

	s := &USBSource{
		ctx: ctx,
		dev: dev,
		info: InterfaceInfo{
			Kind:        InterfaceKindUSB,
			Description: fmt.Sprintf("USB probe %04X:%04X", vid, pid),
			VendorID:    vid,
			ProductID:   pid,
		},
	}
	if err := s.claim(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// claim finds the CDC data interface (class 0x0A) and its bulk IN endpoint.
func (s *USBSource) claim() error {
	cfgNum, err := s.dev.ActiveConfigNum()
	if err != nil {
		cfgNum = 1
	}
	cfg, err := s.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("capture: usb: config %d: %w", cfgNum, err)
	}
	s.cfg = cfg

	num := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassData {
			num = intf.Number
			break
		}
	}
	if num < 0 {
		return fmt.Errorf("capture: usb: no CDC data interface")
	}
	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("capture: usb: claim interface %d: %w", num, err)
	}
	s.intf = intf

	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType == gousb.TransferTypeBulk && ep.Direction == gousb.EndpointDirectionIn {
			in, err := intf.InEndpoint(ep.Number)
			if err != nil {
				return fmt.Errorf("capture: usb: open IN endpoint: %w", err)
			}
			s.epIn = in
			return nil
		}
	}
	return fmt.Errorf("capture: usb: bulk IN endpoint not found")
}

func (s *USBSource) Info() InterfaceInfo { return s.info }

func (s *USBSource) Read(ctx context.Context, p []byte) (int, error) {
	rctx, cancel := context.WithTimeout(ctx, usbReadTimeout)
	defer cancel()
	n, err := s.epIn.ReadContext(rctx, p)
	if err != nil && ctx.Err() == nil && rctx.Err() != nil {
		// Idle probe: nothing to report yet.
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("capture: usb read: %w", err)
	}
	return n, nil
}

func (s *USBSource) Close() error {
	if s.intf != nil {
		s.intf.Close()
	}
	if s.cfg != nil {
		s.cfg.Close()
	}
	if s.dev != nil {
		s.dev.Close()
	}
	if s.ctx != nil {
		return s.ctx.Close()
	}
	return nil
}

// SerialSource reads the probe through its virtual COM port.
type SerialSource struct {
	port *serial.Port
	info InterfaceInfo
}

// OpenSerial opens a serial device node at baud.
func OpenSerial(path string, baud int) (*SerialSource, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		ReadTimeout: serialPollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: serial %s: %w", path, err)
	}
	return &SerialSource{
		port: port,
		info: InterfaceInfo{Kind: InterfaceKindSerial, Description: "Serial port", Path: path},
	}, nil
}

func (s *SerialSource) Info() InterfaceInfo { return s.info }

// Read polls the port until data arrives or ctx is done. The read timeout
// surfaces as an empty read.
func (s *SerialSource) Read(ctx context.Context, p []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := s.port.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("capture: serial read: %w", err)
		}
	}
}

func (s *SerialSource) Close() error { return s.port.Close() }
