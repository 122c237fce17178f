package decode

import "github.com/OpenTraceLab/OpenTraceDecode/pkg/trace"

// parityHolds checks the data bits plus the received parity bit.
func parityHolds(p Parity, data []uint8, parityBit uint8) bool {
	ones := int(parityBit & 1)
	for _, b := range data {
		ones += int(b & 1)
	}
	switch p {
	case ParityEven:
		return ones%2 == 0
	case ParityOdd:
		return ones%2 == 1
	}
	return true
}

// checkUART annotates a sampled frame. Defects never drop the byte.
func checkUART(p UART, f uartFrame) Defect {
	var d Defect
	if len(f.parity) > 0 && !parityHolds(p.Parity, f.data, f.parity[0]) {
		d |= ParityError
	}
	for _, s := range f.stop {
		if s != 1 {
			d |= StopBitError
			break
		}
	}
	return d
}

// classifyCondition maps an SDA edge seen while SCL is high to START or STOP.
func classifyCondition(e trace.Edge) MarkerKind {
	if e == trace.Falling {
		return Start
	}
	return Stop
}
