package wal

// ============================================================================
// Checksum
// Responsibility: compute and verify the CRC32 checksum of journal events
// ============================================================================

import (
	"hash/crc32"
	"strconv"
	"strings"
)

// CalculateChecksum computes the CRC32-IEEE checksum over every field of e
// except Checksum itself.
func CalculateChecksum(e Event) uint32 {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(e.Seq, 10))
	sb.WriteByte('|')
	sb.WriteString(string(e.Type))
	sb.WriteByte('|')
	sb.WriteString(string(e.BotID))
	sb.WriteByte('|')
	sb.WriteString(string(e.OrderType))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(e.Timestamp, 10))
	sb.WriteByte('|')
	sb.WriteString(e.Instance)
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(e.CookSeconds))
	return crc32.ChecksumIEEE([]byte(sb.String()))
}

// VerifyChecksum reports whether the stored checksum matches the event.
func VerifyChecksum(e Event) bool {
	return e.Checksum == CalculateChecksum(e)
}
