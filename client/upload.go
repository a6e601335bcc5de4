package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// Upload stores a file on the engine and returns the server-assigned name,
// which may differ from the requested one when overwrite is false. The
// returned name is what the file-input role expects.
func (c *Client) Upload(ctx context.Context, r io.Reader, filename string, overwrite bool) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	formFile, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", wrapErr(KindTransport, "upload", err)
	}
	if _, err := io.Copy(formFile, r); err != nil {
		return "", wrapErr(KindTransport, "upload", err)
	}
	_ = writer.WriteField("overwrite", fmt.Sprintf("%v", overwrite))
	writer.Close()

	u := fmt.Sprintf("http://%s/upload/image", c.serverAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return "", wrapErr(KindTransport, "upload", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", wrapErr(KindTransport, "upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorf(KindTransport, "upload", "engine returned %s", resp.Status)
	}

	var data struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", wrapErr(KindProtocol, "upload", err)
	}
	if data.Name == "" {
		return "", errorf(KindProtocol, "upload", "upload response carried no name")
	}
	return data.Name, nil
}

// UploadFile uploads a local file by path.
func (c *Client) UploadFile(ctx context.Context, path string, overwrite bool) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", wrapErr(KindConfig, "upload", err)
	}
	defer file.Close()
	return c.Upload(ctx, file, filepath.Base(path), overwrite)
}
