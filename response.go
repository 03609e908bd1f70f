package offlinecache

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
)

// bytesToResponse revives a stored response from its HTTP/1.1
// representation. The request gives the response its parsing context
// (e.g. HEAD responses carry no body).
func bytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}

// responseToBytes returns the HTTP/1.1 representation of a response whose
// body has already been read into body. The response itself is left
// untouched.
func responseToBytes(res *http.Response, body []byte) ([]byte, error) {
	clone := new(http.Response)
	*clone = *res
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	// the stored representation carries an explicit length
	clone.TransferEncoding = nil

	buf := &bytes.Buffer{}
	if err := clone.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
