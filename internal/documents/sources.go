package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/Epistemic-Technology/zotero/zotero"

	"github.com/Epistemic-Technology/production-breakdown/models"
)

// maxRemoteSize caps documents fetched from a URL
var maxRemoteSize int64 = 100 << 20

// ErrRemoteTooLarge is returned when a fetched document exceeds maxRemoteSize
var ErrRemoteTooLarge = errors.New("remote document too large")

// ZoteroCredentials identifies the Zotero library attachments are read from
type ZoteroCredentials struct {
	APIKey    string
	LibraryID string
}

// FetchedDocument is a source document loaded into memory, ready to be
// written to the uploads directory.
type FetchedDocument struct {
	Name      string
	MediaType string
	Data      []byte
}

// FetchSource loads a document from a local path, a URL or a Zotero
// attachment, in that order of precedence.
func FetchSource(ctx context.Context, source models.SourceInfo, creds ZoteroCredentials) (*FetchedDocument, error) {
	var (
		data []byte
		name string
		hint string
		err  error
	)

	switch {
	case source.Path != "":
		data, err = os.ReadFile(source.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", source.Path, err)
		}
		name = filepath.Base(source.Path)
	case source.URL != "":
		data, hint, err = GetFromURL(ctx, source.URL)
		if err != nil {
			return nil, err
		}
		name = nameFromURL(source.URL)
	case source.ZoteroID != "":
		data, name, hint, err = GetFromZotero(ctx, source.ZoteroID, creds)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("no data provided")
	}

	if len(data) == 0 {
		return nil, errors.New("no data retrieved")
	}
	if source.Filename != "" {
		name = source.Filename
	}
	if source.MediaType != "" {
		hint = source.MediaType
	}

	return &FetchedDocument{
		Name:      name,
		MediaType: ResolveMediaType(hint, data[:min(len(data), 512)]),
		Data:      data,
	}, nil
}

// GetFromURL fetches document data from a URL
func GetFromURL(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching %s: unexpected status %s", rawURL, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxRemoteSize {
		return nil, "", fmt.Errorf("fetching %s: %w", rawURL, ErrRemoteTooLarge)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// GetFromZotero fetches an attachment and its filename from a Zotero library
func GetFromZotero(ctx context.Context, zoteroID string, creds ZoteroCredentials) ([]byte, string, string, error) {
	if creds.APIKey == "" || creds.LibraryID == "" {
		return nil, "", "", errors.New("zotero credentials are not configured")
	}
	client := zotero.NewClient(creds.LibraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(creds.APIKey))

	name := zoteroID
	contentType := ""
	item, err := client.Item(ctx, zoteroID, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to fetch Zotero item %s: %w", zoteroID, err)
	}
	if item.Data.ItemType != "attachment" {
		return nil, "", "", fmt.Errorf("zotero item %s is a %s, not an attachment", zoteroID, item.Data.ItemType)
	}
	if item.Data.Filename != "" {
		name = item.Data.Filename
	}
	contentType = item.Data.ContentType

	data, err := client.File(ctx, zoteroID)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to download Zotero attachment %s: %w", zoteroID, err)
	}
	return data, name, contentType, nil
}

func nameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "download"
	}
	return path.Base(u.Path)
}
