package drive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const listFields = "nextPageToken, files(id, name, mimeType, size, createdTime)"

// ResolveFolder finds the folder called name, creating it when absent. When the
// store holds several folders with that name the first one returned wins.
func (c *Client) ResolveFolder(ctx context.Context, accessToken, name string) (*RemoteFolder, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType)
	matches, err := c.listAll(ctx, accessToken, q)
	if err != nil {
		return nil, fmt.Errorf("resolve folder %q: %w", name, err)
	}

	switch {
	case len(matches) == 1:
		return &RemoteFolder{ID: matches[0].ID, Name: matches[0].Name}, nil
	case len(matches) > 1:
		// No uniqueness guarantee exists on the store side; take the first.
		c.logger.Warn().Str("folder", name).Int("matches", len(matches)).Str("chosen", matches[0].ID).Msg("ambiguous folder name")
		return &RemoteFolder{ID: matches[0].ID, Name: matches[0].Name}, nil
	}

	var created RemoteFolder
	endpoint := c.baseURL + "/files?" + url.Values{"fields": {"id, name"}}.Encode()
	meta := fileMetadata{Name: name, MimeType: folderMimeType}
	if err := c.doJSON(ctx, accessToken, http.MethodPost, endpoint, meta, &created); err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	c.logger.Info().Str("folder", name).Str("id", created.ID).Msg("created remote folder")
	return &created, nil
}

// List returns every non-folder object in folder, in store order. Pagination
// is followed until exhausted.
func (c *Client) List(ctx context.Context, accessToken string, folder *RemoteFolder) ([]ObjectRef, error) {
	if folder == nil || folder.ID == "" {
		return nil, fmt.Errorf("list: folder not resolved")
	}
	q := fmt.Sprintf("'%s' in parents and trashed = false and mimeType != '%s'", escapeQuery(folder.ID), folderMimeType)
	refs, err := c.listAll(ctx, accessToken, q)
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", folder.Name, err)
	}
	return refs, nil
}

func (c *Client) listAll(ctx context.Context, accessToken, q string) ([]ObjectRef, error) {
	var refs []ObjectRef
	pageToken := ""
	for {
		params := url.Values{
			"q":        {q},
			"fields":   {listFields},
			"spaces":   {"drive"},
			"pageSize": {"100"},
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page fileList
		if err := c.doJSON(ctx, accessToken, http.MethodGet, c.baseURL+"/files?"+params.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, f := range page.Files {
			ref := ObjectRef{ID: f.ID, Name: f.Name, CreatedAt: f.CreatedTime}
			if f.Size != "" {
				ref.SizeBytes, _ = strconv.ParseInt(f.Size, 10, 64)
			}
			refs = append(refs, ref)
		}

		if page.NextPageToken == "" {
			return refs, nil
		}
		pageToken = page.NextPageToken
	}
}

// escapeQuery escapes a literal for use inside a single-quoted query string.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
