package cache

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Persistent stores compress entry payloads with zstd. The encoder and
// decoder are allocated once and shared; both are safe for concurrent use
// through EncodeAll/DecodeAll.

var (
	zstdEncoder     *zstd.Encoder
	zstdEncoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
	zstdDecoderOnce sync.Once
)

func getZstdEncoder() *zstd.Encoder {
	zstdEncoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(err)
		}
		zstdEncoder = enc
	})
	return zstdEncoder
}

func getZstdDecoder() *zstd.Decoder {
	zstdDecoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		zstdDecoder = dec
	})
	return zstdDecoder
}

func compress(b []byte) []byte {
	return getZstdEncoder().EncodeAll(b, nil)
}

func decompress(b []byte) ([]byte, error) {
	return getZstdDecoder().DecodeAll(b, nil)
}
