package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type uploadedFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        string    `json:"size"`
	CreatedTime time.Time `json:"createdTime"`
}

// Upload sends the local archive to folder as a new object using a multipart
// (metadata + content) request. The file is streamed, never buffered whole.
func (c *Client) Upload(ctx context.Context, accessToken string, folder *RemoteFolder, archivePath string) (*ObjectRef, error) {
	name := filepath.Base(archivePath)
	if folder == nil || folder.ID == "" {
		return nil, &UploadError{Name: name, Err: fmt.Errorf("folder not resolved")}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &UploadError{Name: name, Err: err}
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	meta := fileMetadata{Name: name, MimeType: archiveMimeType, Parents: []string{folder.ID}}
	go func() {
		pw.CloseWithError(writeMultipart(mw, meta, f))
	}()

	params := url.Values{"uploadType": {"multipart"}, "fields": {"id, name, size, createdTime"}}
	endpoint := c.uploadURL + "/files?" + params.Encode()

	resp, err := c.do(ctx, accessToken, http.MethodPost, endpoint, pr, "multipart/related; boundary="+mw.Boundary())
	if err != nil {
		return nil, &UploadError{Name: name, Err: err}
	}
	defer resp.Body.Close()

	var uploaded uploadedFile
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, &UploadError{Name: name, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	ref := &ObjectRef{ID: uploaded.ID, Name: uploaded.Name, CreatedAt: uploaded.CreatedTime}
	if uploaded.Size != "" {
		ref.SizeBytes, _ = strconv.ParseInt(uploaded.Size, 10, 64)
	}
	c.logger.Info().Str("name", ref.Name).Str("id", ref.ID).Str("folder", folder.Name).Msg("archive uploaded")
	return ref, nil
}

func writeMultipart(mw *multipart.Writer, meta fileMetadata, content io.Reader) error {
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return err
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return err
	}

	contentPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {meta.MimeType}})
	if err != nil {
		return err
	}
	if _, err := io.Copy(contentPart, content); err != nil {
		return err
	}
	return mw.Close()
}

// Download streams ref's content to destPath. A partially written file is
// removed on failure.
func (c *Client) Download(ctx context.Context, accessToken string, ref ObjectRef, destPath string) error {
	if ref.ID == "" {
		return &DownloadError{ID: ref.ID, Name: ref.Name, Err: fmt.Errorf("empty object id")}
	}

	endpoint := c.baseURL + "/files/" + url.PathEscape(ref.ID) + "?" + url.Values{"alt": {"media"}}.Encode()
	resp, err := c.do(ctx, accessToken, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return &DownloadError{ID: ref.ID, Name: ref.Name, Err: err}
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return &DownloadError{ID: ref.ID, Name: ref.Name, Err: err}
	}
	out, err := os.Create(destPath)
	if err != nil {
		return &DownloadError{ID: ref.ID, Name: ref.Name, Err: err}
	}

	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(destPath)
		return &DownloadError{ID: ref.ID, Name: ref.Name, Err: err}
	}

	c.logger.Info().Str("name", ref.Name).Int64("bytes", n).Msg("archive downloaded")
	return nil
}
