package platforms

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestHTTPClient(fn roundTripFunc) *HTTPClient {
	return &HTTPClient{inner: &http.Client{Transport: fn}}
}

func response(status int, body string) *http.Response {
	var r io.Reader = bytes.NewReader(nil)
	if body != "" {
		r = strings.NewReader(body)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(r), Header: make(http.Header)}
}
