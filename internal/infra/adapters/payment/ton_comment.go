package payment

import (
	"encoding/base64"
	"encoding/binary"
)

// CommentPayload serialises a text comment (op 0 + UTF-8) as a single-cell bag of cells,
// base64 encoded, the format wallets accept as a transfer payload. Comments longer than
// one cell are truncated to fit.
func CommentPayload(text string) string {
	const maxData = 127 // 1023 bits
	data := make([]byte, 4, 4+len(text))
	binary.BigEndian.PutUint32(data, 0)
	data = append(data, text...)
	if len(data) > maxData {
		data = data[:maxData]
	}

	cell := make([]byte, 0, 2+len(data))
	// no refs, full bytes only
	cell = append(cell, 0x00, byte(2*len(data)))
	cell = append(cell, data...)

	// magic, size_bytes=1 without index or crc, offset bytes, cells, roots, absent,
	// total cells size, root index
	boc := []byte{0xb5, 0xee, 0x9c, 0x72, 0x01, 0x01, 0x01, 0x01, 0x00, byte(len(cell)), 0x00}
	boc = append(boc, cell...)
	return base64.StdEncoding.EncodeToString(boc)
}
