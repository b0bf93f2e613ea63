package cloudinary

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSignSkipsAPIKeyAndFile(t *testing.T) {
	c := New("demo", "key", "secret", "")
	a := c.sign(map[string]string{"timestamp": "1", "public_id": "x", "api_key": "key"})
	b := c.sign(map[string]string{"timestamp": "1", "public_id": "x", "file": "data"})
	if a != b {
		t.Fatalf("api_key and file must not affect the signature")
	}
	if a == c.sign(map[string]string{"timestamp": "2", "public_id": "x"}) {
		t.Fatalf("timestamp must affect the signature")
	}
}

func TestUploadBytes(t *testing.T) {
	var gotPath, gotPublicID, gotFolder, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotPublicID = r.FormValue("public_id")
		gotFolder = r.FormValue("folder")
		f, _, err := r.FormFile("file")
		if err == nil {
			raw, _ := io.ReadAll(f)
			gotFile = string(raw)
		}
		_, _ = w.Write([]byte(`{"public_id":"kkn/T1/alice/x","secure_url":"https://cdn.example/x.jpg","bytes":4}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "kkn/attendance")
	c.BaseURL = srv.URL
	res, err := c.UploadBytes(context.Background(), Proof{Team: "T1", User: "alice", Date: "2024-03-04"}, []byte("jpeg"), "proof.jpg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.SecureURL != "https://cdn.example/x.jpg" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/demo/image/upload" || gotFolder != "kkn/attendance" || gotFile != "jpeg" {
		t.Fatalf("unexpected request path=%s folder=%s file=%q", gotPath, gotFolder, gotFile)
	}
	if !strings.HasPrefix(gotPublicID, "T1/alice/2024-03-04-") {
		t.Fatalf("unexpected public id %q", gotPublicID)
	}
}

func TestUploadFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	if _, err := c.UploadBase64(context.Background(), Proof{Team: "T1", User: "a", Date: "2024-03-04"}, "data:image/png;base64,AAAA"); err == nil {
		t.Fatalf("expected error on 401")
	}
}
