package kvstore

// Run-length encoding for payloads written through the kvstore (spec §4.8
// "Persistence" + original_source/persistent_storage.c, which prefixes
// compressed payloads with a two-byte magic and only keeps the compressed
// form when it is actually smaller).
//
// Wire format, chosen to mirror the original's compact block scheme:
//
//	compressMagic[2]
//	block*
//
// each block is either:
//
//	control byte with bit 0x80 set: low 7 bits = run length (1..127),
//	followed by a single repeated byte.
//
//	control byte with bit 0x80 clear: low 7 bits = literal length
//	(1..127), followed by that many literal bytes verbatim.
var compressMagic = [2]byte{0xAB, 0xCD}

const (
	maxRunLen     = 127
	rleFlag       = 0x80
	minCompressLen = 16 // compression only attempted above this size
)

// isCompressed reports whether data begins with the compression magic.
func isCompressed(data []byte) bool {
	return len(data) >= 2 && data[0] == compressMagic[0] && data[1] == compressMagic[1]
}

// compress run-length-encodes data. The caller decides whether to keep the
// result based on whether it is actually smaller (spec: "only applied if
// payload > 16 bytes and compression shrinks it").
func compress(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, compressMagic[0], compressMagic[1])

	i := 0
	for i < len(data) {
		runStart := i
		for i+1 < len(data) && data[i+1] == data[runStart] && i-runStart+1 < maxRunLen {
			i++
		}
		runLen := i - runStart + 1
		if runLen >= 2 {
			out = append(out, rleFlag|byte(runLen), data[runStart])
			i++
			continue
		}

		// No run here: accumulate a literal block until the next
		// worthwhile run (length >= 2) or maxRunLen literals collected.
		litStart := runStart
		i = runStart
		for i < len(data) {
			// Peek: does a run of length >= 2 start at i?
			if i+1 < len(data) && data[i+1] == data[i] {
				break
			}
			i++
			if i-litStart >= maxRunLen {
				break
			}
		}
		litLen := i - litStart
		out = append(out, byte(litLen))
		out = append(out, data[litStart:litStart+litLen]...)
	}
	return out
}

// decompress reverses compress. data must begin with the compression magic.
func decompress(data []byte) []byte {
	body := data[2:]
	out := make([]byte, 0, len(body)*2)
	i := 0
	for i < len(body) {
		ctl := body[i]
		i++
		if ctl&rleFlag != 0 {
			runLen := int(ctl &^ rleFlag)
			b := body[i]
			i++
			for n := 0; n < runLen; n++ {
				out = append(out, b)
			}
			continue
		}
		litLen := int(ctl)
		out = append(out, body[i:i+litLen]...)
		i += litLen
	}
	return out
}

// maybeCompress returns the compressed form of data when compression is
// enabled, the payload exceeds the minimum threshold, and compressing
// actually shrinks it; otherwise it returns data unchanged.
func maybeCompress(data []byte, enabled bool) []byte {
	if !enabled || len(data) <= minCompressLen {
		return data
	}
	c := compress(data)
	if len(c) >= len(data) {
		return data
	}
	return c
}
