// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package integrations

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zoho-actionizer/actionizer-backend/services/llm"
)

// FileHit is one WorkDrive search result. WorkDrive replies vary their key
// names across endpoints, so the parser accepts the known aliases.
type FileHit struct {
	ID          string
	Name        string
	DownloadURL string
}

// CliqTarget names where a shared file lands. Only chat targets are
// supported.
type CliqTarget struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// FindOrShareRequest resolves a WorkDrive file and either shares it to Cliq
// or returns it inline.
type FindOrShareRequest struct {
	OrgID string

	// FileID wins when set; otherwise NameOrQuery drives a search.
	FileID      string
	NameOrQuery string

	// CliqTarget, when non-nil, receives the file. Nil returns the file
	// base64-encoded in the result.
	CliqTarget *CliqTarget
	Filename   string
	Message    string
}

// SearchWorkDriveFiles searches WorkDrive for files matching the query.
func (c *Client) SearchWorkDriveFiles(ctx context.Context, accessToken, orgID, query string, limit int) ([]FileHit, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("org_id", orgID)

	var raw json.RawMessage
	endpoint := c.cfg.WorkDriveBaseURL + "/files/search"
	err := c.doJSON(ctx, http.MethodGet, endpoint, zohoHeaders(accessToken), q, nil, &raw)
	if err != nil {
		return nil, fmt.Errorf("workdrive: searching files: %w", err)
	}
	return parseFileHits(raw)
}

// parseFileHits tolerates the reply-shape drift between WorkDrive endpoints:
// hits may live under "data" or "files", or the reply may be a bare array.
func parseFileHits(raw json.RawMessage) ([]FileHit, error) {
	var envelope struct {
		Data  []map[string]any `json:"data"`
		Files []map[string]any `json:"files"`
	}
	items := []map[string]any{}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		switch {
		case len(envelope.Data) > 0:
			items = envelope.Data
		case len(envelope.Files) > 0:
			items = envelope.Files
		}
	}
	if len(items) == 0 {
		// Bare array reply.
		if err := json.Unmarshal(raw, &items); err != nil && len(items) == 0 {
			return nil, nil
		}
	}

	hits := make([]FileHit, 0, len(items))
	for _, item := range items {
		hits = append(hits, FileHit{
			ID:          firstString(item, "id", "file_id"),
			Name:        firstString(item, "name", "file_name", "title"),
			DownloadURL: firstString(item, "download_url", "webUrl"),
		})
	}
	return hits, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// DownloadWorkDriveFile returns the raw bytes of a file.
func (c *Client) DownloadWorkDriveFile(ctx context.Context, accessToken, fileID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/files/%s/download", c.cfg.WorkDriveBaseURL, fileID)
	data, err := c.doRaw(ctx, http.MethodGet, endpoint, zohoHeaders(accessToken))
	if err != nil {
		return nil, fmt.Errorf("workdrive: downloading file %s: %w", fileID, err)
	}
	return data, nil
}

// downloadByURL fetches a direct download link from a search hit.
func (c *Client) downloadByURL(ctx context.Context, accessToken, downloadURL string) ([]byte, error) {
	data, err := c.doRaw(ctx, http.MethodGet, downloadURL, zohoHeaders(accessToken))
	if err != nil {
		return nil, fmt.Errorf("workdrive: downloading by url: %w", err)
	}
	return data, nil
}

// UploadWorkDriveFile creates a file under the given parent folder.
func (c *Client) UploadWorkDriveFile(ctx context.Context, accessToken, parentID, name string, content []byte) (map[string]any, error) {
	fields := map[string]string{"parent_id": parentID, "name": name}
	resp, err := c.postMultipart(ctx, c.cfg.WorkDriveBaseURL+"/files",
		accessToken, "content", name, content, fields)
	if err != nil {
		return nil, fmt.Errorf("workdrive: uploading file: %w", err)
	}
	return resp, nil
}

// ShareFileToCliqChat uploads file bytes into a Cliq chat, with an optional
// accompanying message.
func (c *Client) ShareFileToCliqChat(ctx context.Context, accessToken, chatID, filename string, content []byte, message string) (map[string]any, error) {
	fields := map[string]string{}
	if message != "" {
		fields["text"] = message
	}
	endpoint := fmt.Sprintf("%s/api/v2/chats/%s/files", c.cfg.CliqBaseURL, chatID)
	resp, err := c.postMultipart(ctx, endpoint, accessToken, "file", filename, content, fields)
	if err != nil {
		return nil, fmt.Errorf("cliq: sharing file to chat %s: %w", chatID, err)
	}
	return resp, nil
}

// FindOrShareFile resolves a file (by ID, or by search picking the exact
// name match and falling back to the first hit), downloads it, and either
// shares it to the Cliq target or returns it base64-encoded.
//
// # Outputs
//
//   - map[string]any: {"shared_to_cliq": ...} when a target was given,
//     otherwise {"file_id": ..., "file_base64": ...}.
//   - error: ErrFileNotFound when nothing matches; ErrUnsupportedCliqTarget
//     for non-chat targets.
func (c *Client) FindOrShareFile(ctx context.Context, accessToken string, req FindOrShareRequest) (map[string]any, error) {
	fileID := req.FileID
	var content []byte

	if fileID == "" {
		c.logger.Debug("searching workdrive", slog.String("query", req.NameOrQuery))
		hits, err := c.SearchWorkDriveFiles(ctx, accessToken, req.OrgID, req.NameOrQuery, 5)
		if err != nil {
			return nil, err
		}
		chosen, ok := pickHit(hits, req.NameOrQuery)
		if !ok {
			return nil, ErrFileNotFound
		}

		if chosen.ID != "" {
			fileID = chosen.ID
			content, err = c.DownloadWorkDriveFile(ctx, accessToken, fileID)
		} else if chosen.DownloadURL != "" {
			content, err = c.downloadByURL(ctx, accessToken, chosen.DownloadURL)
		} else {
			return nil, fmt.Errorf("workdrive: search result lacks file id and download url")
		}
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		content, err = c.DownloadWorkDriveFile(ctx, accessToken, fileID)
		if err != nil {
			return nil, err
		}
	}

	if req.CliqTarget != nil {
		if req.CliqTarget.Type != "chat" {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedCliqTarget, req.CliqTarget.Type)
		}
		filename := req.Filename
		if filename == "" {
			filename = "file.bin"
		}
		shared, err := c.ShareFileToCliqChat(ctx, accessToken, req.CliqTarget.ID, filename, content, req.Message)
		if err != nil {
			return nil, err
		}
		return map[string]any{"shared_to_cliq": shared}, nil
	}

	return map[string]any{
		"file_id":     fileID,
		"file_base64": base64.StdEncoding.EncodeToString(content),
	}, nil
}

// pickHit prefers an exact name match, then the first hit.
func pickHit(hits []FileHit, name string) (FileHit, bool) {
	for _, h := range hits {
		if h.Name == name {
			return h, true
		}
	}
	if len(hits) > 0 {
		return hits[0], true
	}
	return FileHit{}, false
}

// postMultipart sends one file part plus form fields and decodes the JSON
// reply. The Content-Type header carries the multipart boundary, so the JSON
// default from zohoHeaders is replaced.
func (c *Client) postMultipart(ctx context.Context, endpoint, accessToken, fileField, filename string, content []byte, fields map[string]string) (map[string]any, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing form field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("writing file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+accessToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       llm.SafeLogString(string(body)),
		}
	}

	var out map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("parsing response JSON: %w", err)
		}
	}
	return out, nil
}
