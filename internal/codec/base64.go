// Package codec implements the base64 line codec the core pipeline consumes
// to turn an input line into a document body and back. The standalone
// docenc/b64filter tool binaries that expose this codec as a CLI are out of
// scope for this repository; only the functions the pipeline calls directly
// live here.
package codec

import "encoding/base64"

// Decode turns one base64-encoded input line into the raw document body.
func Decode(line string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(line)
}

// Encode turns a raw document body into one base64 output line.
func Encode(body []byte) string {
	return base64.StdEncoding.EncodeToString(body)
}
