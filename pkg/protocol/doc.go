// Package protocol implements the framed text protocol spoken between the
// host and the control board firmware.
package protocol

// Every frame is a single ASCII line terminated by CRLF, made of tagged
// fields each terminated by ';'. The last field is always CRC, an 8-bit
// CRC-8/MAXIM (Dallas 1-Wire) checksum of every byte preceding "CRC:".
//
// Host to device:   LED:<uint16>;PWM:<int>,<int>,...;CRC:<uint8>;
// Device to host:   SW:<hex>;ANA:<int>,<int>,...;CRC:<uint8>;
//
// After a reset pulse on DTR the device sends Welcome once.
