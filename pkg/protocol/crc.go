package protocol

import (
	"strconv"

	"github.com/sigurn/crc8"
)

var crcTable = crc8.MakeTable(crc8.CRC8_MAXIM)

// Checksum calculates CRC-8/MAXIM (poly 0x31 reflected, init 0x00).
func Checksum(data []byte) uint8 {
	return crc8.Checksum(data, crcTable)
}

// Seal appends the CRC field to payload. payload must end with ';'.
func Seal(payload string) string {
	return payload + tagCRC + ":" + strconv.Itoa(int(Checksum([]byte(payload)))) + ";"
}
