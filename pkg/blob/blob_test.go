package blob

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetcherDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/exercises/5/code.zip":
			_, _ = w.Write([]byte("zipbytes"))
		case "/exercises/5/broken.zip":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/", 0).WithClient(srv.Client())

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr error
		anyErr  bool
	}{
		{name: "found", key: "exercises/5/code.zip", want: "zipbytes"},
		{name: "leading slash", key: "/exercises/5/code.zip", want: "zipbytes"},
		{name: "missing", key: "exercises/6/code.zip", wantErr: ErrNotFound},
		{name: "server error", key: "exercises/5/broken.zip", anyErr: true},
		{name: "empty key", key: "", anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Download(context.Background(), tt.key)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected error")
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if string(got) != tt.want {
					t.Errorf("got %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestHTTPFetcherSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, 0).WithClient(srv.Client())
	f.maxSize = 10
	if _, err := f.Download(context.Background(), "big"); err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	m.Put("k", []byte("v"))

	got, err := m.Download(context.Background(), "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Download = %q, %v", got, err)
	}
	if _, err := m.Download(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
