package covers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetch_ServiceMessagePreferred(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status": 500, "subStatus": 999, "userMessage": "Something went wrong on our side"}`))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}

	body, serr := fetch(server.Client(), req, decodeTidalError)
	if body != nil || serr == nil {
		t.Fatal("fetch() of an error response must classify, not return a payload")
	}
	if serr.Kind != ErrorKindAPI {
		t.Errorf("Kind = %q, want %q", serr.Kind, ErrorKindAPI)
	}
	want := "Something went wrong on our side (500) (999)"
	if serr.Message != want {
		t.Errorf("Message = %q, want the service's own message %q", serr.Message, want)
	}
}

func TestFetch_GenericStatusFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`<html>upstream balancer error</html>`))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}

	_, serr := fetch(server.Client(), req, decodeTidalError)
	if serr == nil {
		t.Fatal("fetch() of a 503 must classify an error")
	}
	if serr.Kind != ErrorKindAPI {
		t.Errorf("Kind = %q, want %q", serr.Kind, ErrorKindAPI)
	}
	want := "received HTTP status 503"
	if serr.Message != want {
		t.Errorf("Message = %q, want fallback %q", serr.Message, want)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := server.Client()
	server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}

	_, serr := fetch(client, req, decodeTidalError)
	if serr == nil {
		t.Fatal("fetch() against a closed server must classify an error")
	}
	if serr.Kind != ErrorKindNetwork {
		t.Errorf("Kind = %q, want %q", serr.Kind, ErrorKindNetwork)
	}
}
