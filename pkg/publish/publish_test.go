package publish

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

var imageBytes = []byte("\x89PNG fake image")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "01HX_plate.png")
	if err := os.WriteFile(path, imageBytes, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

type captured struct {
	contentType string
	form        map[string]string
	json        map[string]any
}

// automationServer fakes an Apps Script endpoint replying with status and body.
func automationServer(t *testing.T, status int, body string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			got.contentType = r.Header.Get("Content-Type")
			if strings.HasPrefix(got.contentType, "application/json") {
				_ = json.NewDecoder(r.Body).Decode(&got.json)
			} else {
				_ = r.ParseForm()
				got.form = map[string]string{}
				for k, v := range r.PostForm {
					got.form[k] = v[0]
				}
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func publishTo(t *testing.T, url string, schema Schema) (*Result, error) {
	t.Helper()
	w := NewWebhook(WebhookOptions{URL: url, Schema: schema}, testLogger())
	return w.Publish(context.Background(), Submission{Text: "ABC-1234", FilePath: writeImage(t), FileName: "01HX_plate.png"})
}

func TestWebhookFormSchema(t *testing.T) {
	got := &captured{}
	srv := automationServer(t, http.StatusOK, "https://drive.google.com/file/d/abc/view\n", got)

	res, err := publishTo(t, srv.URL, SchemaFormV1)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.Success || res.URL != "https://drive.google.com/file/d/abc/view" {
		t.Errorf("unexpected result %+v", res)
	}
	if got.contentType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", got.contentType)
	}
	if got.form["plate_number"] != "ABC-1234" || got.form["filename"] != "01HX_plate.png" {
		t.Errorf("form = %v", got.form)
	}
	if got.form["image"] != base64.StdEncoding.EncodeToString(imageBytes) {
		t.Errorf("image field is not the base64 of the file")
	}
}

func TestWebhookJSONSchemas(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString(imageBytes)
	tests := []struct {
		schema Schema
		want   map[string]any
		absent []string
	}{
		{SchemaJSONV1, map[string]any{"image": b64, "plate_number": "ABC-1234"}, []string{"fileName", "plateNumber"}},
		{SchemaJSONV2, map[string]any{"imageBase64": b64, "plateNumber": "ABC-1234"}, []string{"image", "fileName"}},
		{SchemaJSONV3, map[string]any{"base64Image": b64, "plateNumber": "ABC-1234", "fileName": "01HX_plate.png"}, []string{"image"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.schema), func(t *testing.T) {
			got := &captured{}
			srv := automationServer(t, http.StatusOK, `{"success":true,"fileUrl":"https://drive.google.com/x"}`, got)
			res, err := publishTo(t, srv.URL, tt.schema)
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if res.URL != "https://drive.google.com/x" {
				t.Errorf("URL = %q", res.URL)
			}
			for k, v := range tt.want {
				if got.json[k] != v {
					t.Errorf("%s = %v, expected %v", k, got.json[k], v)
				}
			}
			for _, k := range tt.absent {
				if _, ok := got.json[k]; ok {
					t.Errorf("field %s should not be sent by %s", k, tt.schema)
				}
			}
			if _, ok := got.json["folderId"]; ok {
				t.Errorf("empty destination fields must be omitted")
			}
		})
	}
}

func TestWebhookDestinationFields(t *testing.T) {
	got := &captured{}
	srv := automationServer(t, http.StatusOK, `{"status":"success","url":"https://x.test/f"}`, got)
	w := NewWebhook(WebhookOptions{
		URL:         srv.URL,
		Schema:      SchemaJSONV2,
		Destination: Destination{FolderID: "folder-1", SheetName: "License Plates"},
	}, testLogger())
	if _, err := w.Publish(context.Background(), Submission{Text: "X", FilePath: writeImage(t)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got.json["folderId"] != "folder-1" || got.json["sheetName"] != "License Plates" {
		t.Errorf("destination fields missing: %v", got.json)
	}
}

func TestWebhookHTTP500(t *testing.T) {
	srv := automationServer(t, http.StatusInternalServerError, "Script function not found", nil)
	res, err := publishTo(t, srv.URL, SchemaJSONV1)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
	if !strings.Contains(err.Error(), "HTTP 500") || !strings.Contains(err.Error(), "Script function not found") {
		t.Errorf("error = %q", err)
	}
	if res == nil || res.Success || res.URL != "" || res.StatusCode != 500 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestWebhookNotConfigured(t *testing.T) {
	w := NewWebhook(WebhookOptions{}, testLogger())
	if _, err := w.Publish(context.Background(), Submission{FilePath: writeImage(t)}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestWebhookNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, err := publishTo(t, url, SchemaFormV1)
	var terr *TransportError
	if !errors.As(err, &terr) || terr.StatusCode != 0 {
		t.Fatalf("expected network *TransportError, got %T %v", err, err)
	}
}

func TestWebhookTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	w := NewWebhook(WebhookOptions{URL: srv.URL, Timeout: 20 * time.Millisecond}, testLogger())
	_, err := w.Publish(context.Background(), Submission{FilePath: writeImage(t)})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
}

func TestWebhookMissingFile(t *testing.T) {
	w := NewWebhook(WebhookOptions{URL: "http://127.0.0.1:0"}, testLogger())
	if _, err := w.Publish(context.Background(), Submission{FilePath: filepath.Join(t.TempDir(), "gone.png")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantOK  bool
		wantURL string
		wantErr string
	}{
		{"empty body", "", true, "", ""},
		{"plain url", "https://drive.google.com/a", true, "https://drive.google.com/a", ""},
		{"json string url", `"https://drive.google.com/b"`, true, "https://drive.google.com/b", ""},
		{"success flag", `{"success":true,"imageUrl":"https://i/1"}`, true, "https://i/1", ""},
		{"success without url", `{"success":true}`, true, "", ""},
		{"status ok", `{"status":"OK","driveUrl":"https://d/2"}`, true, "https://d/2", ""},
		{"view url", `{"status":"success","viewUrl":"https://v/3"}`, true, "https://v/3", ""},
		{"first url wins", `{"success":true,"url":"https://a","link":"https://b"}`, true, "https://a", ""},
		{"failure flag", `{"success":false,"error":"Sheet not found"}`, false, "", "Sheet not found"},
		{"failure status message", `{"status":"error","message":"quota exceeded"}`, false, "", "quota exceeded"},
		{"structured error", `{"error":{"code":403,"detail":"denied"}}`, false, "", `"detail":"denied"`},
		{"no flag url only", `{"link":"https://l/4"}`, true, "https://l/4", ""},
		{"html page", "<html><body>Error</body></html>", false, "", "<html>"},
		{"plain text", "Upload failed", false, "", "Upload failed"},
		{"broken json", `{"success":`, false, "", `{"success":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := interpret(200, []byte(tt.body))
			if tt.wantOK {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if !res.Success || res.URL != tt.wantURL {
					t.Errorf("result = %+v, expected url %q", res, tt.wantURL)
				}
				return
			}
			var serr *ServiceError
			if !errors.As(err, &serr) {
				t.Fatalf("expected *ServiceError, got %T %v", err, err)
			}
			if !strings.Contains(serr.Message, tt.wantErr) {
				t.Errorf("message = %q, expected to contain %q", serr.Message, tt.wantErr)
			}
			if res.Success {
				t.Errorf("failed result marked as success")
			}
		})
	}
}

func TestParseSchema(t *testing.T) {
	for in, want := range map[string]Schema{"": SchemaFormV1, "JSON-V2": SchemaJSONV2, "json-v3": SchemaJSONV3, " form-v1 ": SchemaFormV1} {
		got, err := ParseSchema(in)
		if err != nil || got != want {
			t.Errorf("ParseSchema(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSchema("xml"); err == nil {
		t.Error("expected error for unknown schema")
	}
}

func TestDisabled(t *testing.T) {
	if _, err := (Disabled{}).Publish(context.Background(), Submission{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestNewBucketRequiresEndpoint(t *testing.T) {
	if _, err := NewBucket(BucketOptions{Bucket: "plates"}, testLogger()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	if k := objectKey(Submission{FilePath: "/tmp/uploads/01HX_a.jpg"}); k != "plates/01HX_a.jpg" {
		t.Errorf("objectKey = %q", k)
	}
	if k := objectKey(Submission{FileName: "b.png", FilePath: "/x/y.png"}); k != "plates/b.png" {
		t.Errorf("objectKey = %q", k)
	}
	if ct := contentTypeFor("plates/b.png"); ct != "image/png" {
		t.Errorf("contentTypeFor = %q", ct)
	}
}

type s3Request struct {
	method string
	path   string
	plate  string
}

// s3Server fakes the object PUT of an S3 compatible store.
func s3Server(t *testing.T, status int, got *s3Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.plate = r.Header.Get("X-Amz-Meta-Plate-Number")
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>InternalError</Code><Message>backend exploded</Message></Error>`)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testBucket(t *testing.T, srv *httptest.Server) *Bucket {
	t.Helper()
	b, err := NewBucket(BucketOptions{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "plates",
		URLExpiry: time.Hour,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewBucket: %v", err)
	}
	return b
}

func TestBucketPublish(t *testing.T) {
	var got s3Request
	b := testBucket(t, s3Server(t, http.StatusOK, &got))

	res, err := b.Publish(context.Background(), Submission{Text: "ABC-1234", FilePath: writeImage(t), FileName: "01HX_plate.png"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got.method != http.MethodPut || got.path != "/plates/plates/01HX_plate.png" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if got.plate != "ABC-1234" {
		t.Errorf("plate metadata = %q", got.plate)
	}
	if !res.Success || !strings.Contains(res.URL, "/plates/plates/01HX_plate.png") || !strings.Contains(res.URL, "X-Amz-Signature=") {
		t.Errorf("result = %+v", res)
	}
}

func TestBucketPublishServerError(t *testing.T) {
	retries := minio.MaxRetry
	minio.MaxRetry = 1
	t.Cleanup(func() { minio.MaxRetry = retries })

	var got s3Request
	b := testBucket(t, s3Server(t, http.StatusInternalServerError, &got))

	res, err := b.Publish(context.Background(), Submission{Text: "ABC-1234", FilePath: writeImage(t), FileName: "01HX_plate.png"})
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected *TransportError with status 500, got %T %v", err, err)
	}
	if te.Body != "backend exploded" {
		t.Errorf("Body = %q", te.Body)
	}
}
