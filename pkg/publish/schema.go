package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"platelog/pkg/textutil"
)

// Schema names one revision of the automation endpoint contract. The Apps
// Script deployments in use disagree on field names, so the request shape is
// chosen by configuration instead of guessed.
type Schema string

const (
	// SchemaFormV1 posts form fields image, filename, plate_number and expects
	// the stored file URL as the plain-text response body.
	SchemaFormV1 Schema = "form-v1"
	// SchemaJSONV1 posts JSON {image, plate_number}.
	SchemaJSONV1 Schema = "json-v1"
	// SchemaJSONV2 posts JSON {imageBase64, plateNumber}.
	SchemaJSONV2 Schema = "json-v2"
	// SchemaJSONV3 posts JSON {base64Image, plateNumber, fileName}.
	SchemaJSONV3 Schema = "json-v3"
)

// ParseSchema validates a schema name; an empty name selects SchemaFormV1.
func ParseSchema(s string) (Schema, error) {
	switch Schema(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemaFormV1:
		return SchemaFormV1, nil
	case SchemaJSONV1:
		return SchemaJSONV1, nil
	case SchemaJSONV2:
		return SchemaJSONV2, nil
	case SchemaJSONV3:
		return SchemaJSONV3, nil
	}
	return "", fmt.Errorf("unknown publish schema %q", s)
}

// Destination carries optional routing hints forwarded to JSON schemas.
type Destination struct {
	FolderID      string `json:"folderId,omitempty"`
	SpreadsheetID string `json:"spreadsheetId,omitempty"`
	SheetName     string `json:"sheetName,omitempty"`
}

type payload struct {
	ImageBase64 string
	FileName    string
	PlateNumber string
}

type jsonV1Request struct {
	Image       string `json:"image"`
	PlateNumber string `json:"plate_number"`
	Destination
}

type jsonV2Request struct {
	ImageBase64 string `json:"imageBase64"`
	PlateNumber string `json:"plateNumber"`
	Destination
}

type jsonV3Request struct {
	Base64Image string `json:"base64Image"`
	PlateNumber string `json:"plateNumber"`
	FileName    string `json:"fileName"`
	Destination
}

// encode renders the request body and its content type.
func (s Schema) encode(p payload, dest Destination) ([]byte, string, error) {
	var v any
	switch s {
	case SchemaFormV1:
		form := url.Values{}
		form.Set("image", p.ImageBase64)
		form.Set("filename", p.FileName)
		form.Set("plate_number", p.PlateNumber)
		return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
	case SchemaJSONV1:
		v = jsonV1Request{Image: p.ImageBase64, PlateNumber: p.PlateNumber, Destination: dest}
	case SchemaJSONV2:
		v = jsonV2Request{ImageBase64: p.ImageBase64, PlateNumber: p.PlateNumber, Destination: dest}
	case SchemaJSONV3:
		v = jsonV3Request{Base64Image: p.ImageBase64, PlateNumber: p.PlateNumber, FileName: p.FileName, Destination: dest}
	default:
		return nil, "", fmt.Errorf("unknown publish schema %q", s)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return body, "application/json", nil
}

// response is the union of the JSON replies seen from automation scripts.
type response struct {
	Success  *bool           `json:"success"`
	Status   string          `json:"status"`
	URL      string          `json:"url"`
	FileURL  string          `json:"fileUrl"`
	ImageURL string          `json:"imageUrl"`
	DriveURL string          `json:"driveUrl"`
	ViewURL  string          `json:"viewUrl"`
	Link     string          `json:"link"`
	Error    json.RawMessage `json:"error"`
	Message  string          `json:"message"`
}

func (r response) url() string {
	for _, u := range []string{r.URL, r.FileURL, r.ImageURL, r.DriveURL, r.ViewURL, r.Link} {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

func (r response) errorText() string {
	if len(r.Error) == 0 || string(r.Error) == "null" || string(r.Error) == "false" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s
	}
	return string(r.Error)
}

func (r response) ok() bool {
	switch {
	case r.Success != nil:
		return *r.Success
	case r.Status != "":
		st := strings.ToLower(r.Status)
		return st == "success" || st == "ok"
	default:
		return r.errorText() == ""
	}
}

// interpret maps a 2xx response body to a Result, or a *ServiceError when the
// body signals failure.
func interpret(status int, body []byte) (*Result, error) {
	raw := strings.TrimSpace(string(body))
	res := &Result{StatusCode: status, Raw: raw}
	if raw == "" {
		res.Success = true
		return res, nil
	}

	trimmed := bytes.TrimSpace(body)
	if trimmed[0] == '{' {
		var r response
		if err := json.Unmarshal(trimmed, &r); err == nil {
			if !r.ok() {
				msg := r.errorText()
				if msg == "" {
					msg = r.Message
				}
				if msg == "" {
					msg = "request rejected"
				}
				return res, &ServiceError{Message: msg}
			}
			res.Success = true
			res.URL = r.url()
			return res, nil
		}
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			raw = strings.TrimSpace(s)
		}
	}

	// Opaque body: a bare URL means success.
	if isHTTPURL(raw) {
		res.Success = true
		res.URL = raw
		return res, nil
	}
	return res, &ServiceError{Message: textutil.Snippet(raw, 300)}
}

func isHTTPURL(s string) bool {
	if strings.ContainsAny(s, " \n\t") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
