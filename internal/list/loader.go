package list

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"
)

type (
	// The Loader interface describes types that open the raw contents of a block list.
	Loader interface {
		Load(ctx context.Context) (io.ReadCloser, error)
	}

	// The FileLoader type is a Loader implementation that reads a block list from the local filesystem.
	FileLoader struct {
		path string
	}

	// The HTTPLoader type is a Loader implementation that downloads a block list using an HTTP GET request. Any
	// response other than 200 OK is an error.
	HTTPLoader struct {
		url    string
		client *http.Client
	}
)

const httpTimeout = 5 * time.Minute

// NewFileLoader returns a new instance of the FileLoader type that reads the file at path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load opens the file.
func (l *FileLoader) Load(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}

	return f, nil
}

// NewHTTPLoader returns a new instance of the HTTPLoader type that downloads url using client. If client is nil, a
// client with a five minute timeout is used.
func NewHTTPLoader(url string, client *http.Client) *HTTPLoader {
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}

	return &HTTPLoader{url: url, client: client}
}

// Load performs the request and returns its body.
func (l *HTTPLoader) Load(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, &Error{Kind: KindFetch, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindFetch, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &Error{Kind: KindHTTPNotOK, Err: &StatusError{Code: resp.StatusCode}}
	}

	return resp.Body, nil
}
