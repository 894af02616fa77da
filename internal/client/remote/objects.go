package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func objectPath(key string) string {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "/storage/v1/object/" + strings.Join(parts, "/")
}

// UploadObject stores the content of r under key in the caller's space.
func (c *Client) UploadObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(objectPath(key), nil), r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("upload %s: %w", key, &StatusError{Code: resp.StatusCode, Body: string(msg)})
	}
	return nil
}

// DownloadObject opens the object stored under key. The caller closes it.
func (c *Client) DownloadObject(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, objectPath(key), nil, nil, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DeleteObject removes the object stored under key.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	resp, err := c.do(ctx, http.MethodDelete, objectPath(key), nil, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
