package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Welcome is the line the firmware sends right after a reset.
const Welcome = "FRC Control Board"

// LineEnding terminates every line on the wire.
const LineEnding = "\r\n"

// MaxBitChannels is the maximum number of LED or switch channels
// which fit into the 16-bit masks.
const MaxBitChannels = 16

const (
	tagLED    = "LED"
	tagPWM    = "PWM"
	tagSwitch = "SW"
	tagAnalog = "ANA"
	tagCRC    = "CRC"
)

// Codec packs and unpacks frames for a fixed channel layout.
type Codec struct {
	LEDs     int
	PWMs     int
	Analogs  int
	Switches int
}

// Encode builds a host to device frame (without line ending).
func (c Codec) Encode(leds []bool, pwms []int) (string, error) {
	if len(leds) != c.LEDs {
		return "", &CountError{Field: tagLED, Expected: c.LEDs, Actual: len(leds), base: ErrInvalidArgument}
	}
	if len(pwms) != c.PWMs {
		return "", &CountError{Field: tagPWM, Expected: c.PWMs, Actual: len(pwms), base: ErrInvalidArgument}
	}
	payload := tagLED + ":" + strconv.FormatUint(uint64(PackLEDs(leds)), 10) + ";" +
		tagPWM + ":" + joinInts(pwms) + ";"
	return Seal(payload), nil
}

// Decode parses a device to host frame. Either both vectors are returned
// or an error, never partial data.
func (c Codec) Decode(line string) (switches []bool, analogs []int, err error) {
	fields, err := parseFrame(line, tagAnalog, tagCRC, tagSwitch)
	if err != nil {
		return nil, nil, err
	}
	mask, err := strconv.ParseUint(fields[tagSwitch], 16, 16)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedField, tagSwitch, err)
	}
	switches = UnpackSwitches(uint16(mask), c.Switches)
	if analogs, err = splitInts(tagAnalog, fields[tagAnalog], c.Analogs); err != nil {
		return nil, nil, err
	}
	return switches, analogs, nil
}

// EncodeInputs builds a device to host frame (without line ending).
// It's the firmware side of Decode.
func (c Codec) EncodeInputs(switches []bool, analogs []int) (string, error) {
	if len(switches) != c.Switches {
		return "", &CountError{Field: tagSwitch, Expected: c.Switches, Actual: len(switches), base: ErrInvalidArgument}
	}
	if len(analogs) != c.Analogs {
		return "", &CountError{Field: tagAnalog, Expected: c.Analogs, Actual: len(analogs), base: ErrInvalidArgument}
	}
	payload := tagSwitch + ":" + strconv.FormatUint(uint64(PackSwitches(switches)), 16) + ";" +
		tagAnalog + ":" + joinInts(analogs) + ";"
	return Seal(payload), nil
}

// DecodeOutputs parses a host to device frame.
// It's the firmware side of Encode.
func (c Codec) DecodeOutputs(line string) (leds []bool, pwms []int, err error) {
	fields, err := parseFrame(line, tagCRC, tagLED, tagPWM)
	if err != nil {
		return nil, nil, err
	}
	packed, err := strconv.ParseUint(fields[tagLED], 10, 16)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedField, tagLED, err)
	}
	leds = UnpackLEDs(uint16(packed), c.LEDs)
	if pwms, err = splitInts(tagPWM, fields[tagPWM], c.PWMs); err != nil {
		return nil, nil, err
	}
	return leds, pwms, nil
}

// PackLEDs packs LED states the way the firmware expects: starting from 0,
// each LED is OR-ed into bit 16 and the value shifted right by one.
// With n LEDs, LED i ends up in bit 16-n+i.
func PackLEDs(leds []bool) uint16 {
	var val uint32
	for _, on := range leds {
		if on {
			val |= 1 << 16
		}
		val >>= 1
	}
	return uint16(val)
}

// UnpackLEDs reverses PackLEDs for n LEDs.
func UnpackLEDs(val uint16, n int) []bool {
	leds := make([]bool, n)
	shift := MaxBitChannels - n
	for i := range leds {
		leds[i] = (val>>uint(shift+i))&1 != 0
	}
	return leds
}

// PackSwitches sets bit i for switch i.
func PackSwitches(switches []bool) uint16 {
	var val uint16
	for i, on := range switches {
		if on {
			val |= 1 << uint(i)
		}
	}
	return val
}

// UnpackSwitches extracts n switches from the mask, LSB first.
func UnpackSwitches(mask uint16, n int) []bool {
	switches := make([]bool, n)
	for i := range switches {
		switches[i] = mask&1 != 0
		mask >>= 1
	}
	return switches
}

func parseFrame(line string, required ...string) (map[string]string, error) {
	frame := strings.TrimRight(line, LineEnding)
	if strings.TrimSpace(frame) == "" {
		return nil, ErrEmptyFrame
	}
	segments := strings.Split(frame, ";")
	if segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	fields := make(map[string]string, len(segments))
	for _, seg := range segments {
		pos := strings.IndexByte(seg, ':')
		if pos < 0 {
			return nil, fmt.Errorf("%w: %q in %q", ErrMalformedField, seg, frame)
		}
		fields[seg[:pos]] = seg[pos+1:]
	}
	var missing []string
	for _, tag := range required {
		if _, ok := fields[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldError{Tags: missing, Frame: frame}
	}

	transmitted, err := strconv.ParseUint(fields[tagCRC], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedField, tagCRC, err)
	}
	payload := frame[:strings.Index(frame, tagCRC+":")]
	if calculated := Checksum([]byte(payload)); uint8(transmitted) != calculated {
		return nil, &ChecksumError{Transmitted: uint8(transmitted), Calculated: calculated, Frame: frame}
	}
	return fields, nil
}

func joinInts(vals []int) string {
	strs := make([]string, len(vals))
	for n, v := range vals {
		strs[n] = strconv.Itoa(v)
	}
	return strings.Join(strs, ",")
}

func splitInts(tag, str string, expected int) ([]int, error) {
	var items []string
	if str != "" {
		items = strings.Split(str, ",")
	}
	if len(items) != expected {
		return nil, &CountError{Field: tag, Expected: expected, Actual: len(items), base: ErrChannelCountMismatch}
	}
	vals := make([]int, len(items))
	for n, item := range items {
		v, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrMalformedField, tag, n, err)
		}
		vals[n] = v
	}
	return vals, nil
}
