package content

import "github.com/glaslos/tlsh"

// minFingerprintBytes is the shortest input TLSH can hash.
const minFingerprintBytes = 50

// SimilarityHash returns the TLSH locality-sensitive hash of data, or "" when
// data is too short or too uniform to hash.
func SimilarityHash(data []byte) string {
	if len(data) < minFingerprintBytes {
		return ""
	}
	h, err := tlsh.HashBytes(data)
	if err != nil || h == nil {
		return ""
	}
	return h.String()
}
