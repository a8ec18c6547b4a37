package notify

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestroyLocalSession_Acknowledged(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		received = r.PostFormValue("logoutRequest")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(time.Second, nil)
	ok := n.DestroyLocalSession(srv.URL, "ST-12345")

	assert.True(t, ok)
	assert.Contains(t, received, "<samlp:SessionIndex>ST-12345</samlp:SessionIndex>")
}

func TestDestroyLocalSession_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(time.Second, nil)
	assert.False(t, n.DestroyLocalSession(srv.URL, "ST-12345"))
}

func TestDestroyLocalSession_Unreachable(t *testing.T) {
	n := NewHTTPNotifier(100*time.Millisecond, nil)
	assert.False(t, n.DestroyLocalSession("http://127.0.0.1:1/logout", "ST-12345"))
}
