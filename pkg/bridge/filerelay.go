// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exmime"
)

// FileRelay republishes hub file attachments on a public paste host, since
// the hub's own file URLs require an authenticated hub account. Fetch and
// upload are streamed so large files never sit in memory, and every relay
// runs on its own goroutine off the event drain path.
type FileRelay struct {
	host   string
	token  string
	client *http.Client
	log    zerolog.Logger
}

func NewFileRelay(host, token string, log zerolog.Logger) *FileRelay {
	return &FileRelay{
		host:   host,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Minute},
		log:    log.With().Str("component", "filerelay").Logger(),
	}
}

// Relay fetches one attachment, uploads it to the file host and announces
// the public URL on the relay target as an action from the sharing session.
// Failures are logged and the attachment is skipped.
func (r *FileRelay) Relay(ctx context.Context, file HubFile, p *UserSession, target string) {
	location, err := r.republish(ctx, file)
	if err != nil {
		r.log.Err(err).Str("file", file.Name).Msg("Failed to relay file attachment")
		return
	}
	p.SendAction(target, "uploaded a file: "+location)
}

func (r *FileRelay) republish(ctx context.Context, file HubFile) (string, error) {
	name := uploadName(file)
	location, status, err := r.attempt(ctx, file.URLPrivate, name)
	if err == nil {
		return location, nil
	}
	// The host rejects oversized uploads; the hub's 1024px thumbnail is a
	// usable stand-in for large images.
	if status == http.StatusRequestEntityTooLarge &&
		file.Thumb1024 != "" && file.Thumb1024 != file.URLPrivate {
		r.log.Debug().Str("file", name).Msg("Upload too large, retrying with thumbnail")
		location, _, err = r.attempt(ctx, file.Thumb1024, name)
		if err == nil {
			return location, nil
		}
	}
	return "", err
}

// attempt streams one fetch-and-upload round trip. The returned status is
// the upload response code when the host refused the file, 0 otherwise.
func (r *FileRelay) attempt(ctx context.Context, fetchURL, name string) (string, int, error) {
	fetch, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", 0, err
	}
	fetch.Header.Set("Authorization", "Bearer "+r.token)
	resp, err := r.client.Do(fetch)
	if err != nil {
		return "", 0, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("fetch attachment: unexpected status %d", resp.StatusCode)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, resp.Body)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	upload, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/upload?json", pr)
	if err != nil {
		return "", 0, err
	}
	upload.Header.Set("Content-Type", form.FormDataContentType())
	uresp, err := r.client.Do(upload)
	if err != nil {
		return "", 0, fmt.Errorf("upload attachment: %w", err)
	}
	defer uresp.Body.Close()

	var body struct {
		Success       bool   `json:"success"`
		Error         string `json:"error"`
		UploadedFiles map[string]struct {
			Paste string `json:"paste"`
			Raw   string `json:"raw"`
		} `json:"uploaded_files"`
	}
	if err := json.NewDecoder(uresp.Body).Decode(&body); err != nil {
		return "", uresp.StatusCode, fmt.Errorf("upload attachment: decode response: %w", err)
	}
	if uresp.StatusCode != http.StatusOK || !body.Success {
		return "", uresp.StatusCode, fmt.Errorf("upload attachment: host refused (%d): %s",
			uresp.StatusCode, body.Error)
	}
	uploaded, ok := body.UploadedFiles[name]
	if !ok {
		return "", uresp.StatusCode, fmt.Errorf("upload attachment: no entry for %q in response", name)
	}
	location := uploaded.Paste
	if location == "" {
		location = uploaded.Raw
	}
	return location, uresp.StatusCode, nil
}

// uploadName makes sure the published name carries an extension, so the
// file host serves it with a sensible content type. The hub strips
// extensions from some display names.
func uploadName(file HubFile) string {
	name := file.Name
	if name == "" {
		name = "file"
	}
	if filepath.Ext(name) != "" {
		return name
	}
	if file.Filetype != "" {
		return name + "." + file.Filetype
	}
	if ext := exmime.ExtensionFromMimetype(file.Mimetype); ext != "" {
		return name + ext
	}
	return name
}
