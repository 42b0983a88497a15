// Package drive talks to the Google Drive v3 API on behalf of a user.
// Every call takes the user's OAuth access token; the client itself holds no credentials.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	// ErrNotFound means the file does not exist or is not visible to the user.
	ErrNotFound = errors.New("drive file not found")
	// ErrPermissionDenied means the user may not perform the operation on the file.
	ErrPermissionDenied = errors.New("drive permission denied")
)

// Client is a thin wrapper around drive.Service.
type Client struct {
	endpoint  string
	transport http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint points the client at a different API root, e.g. an httptest server.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		c.endpoint = endpoint
	}
}

// WithTransport sets the base transport under the OAuth layer, e.g. a breaker transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) service(ctx context.Context, token string) (*drive.Service, error) {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return svc, nil
}

// FetchName returns the current name of a file.
func (c *Client) FetchName(ctx context.Context, fileID, token string) (string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return "", err
	}
	f, err := svc.Files.Get(fileID).Fields("id", "name").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", translate(fileID, err)
	}
	return f.Name, nil
}

// Rename changes a file's name after checking the user is allowed to edit it.
func (c *Client) Rename(ctx context.Context, fileID, newName, token string) (string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return "", err
	}

	meta, err := svc.Files.Get(fileID).Fields("id", "capabilities/canEdit").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", translate(fileID, err)
	}
	if meta.Capabilities == nil || !meta.Capabilities.CanEdit {
		return "", fmt.Errorf("rename %s: %w", fileID, ErrPermissionDenied)
	}

	updated, err := svc.Files.Update(fileID, &drive.File{Name: newName}).
		Fields("id", "name").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", translate(fileID, err)
	}
	return updated.Name, nil
}

// Delete removes a file permanently.
func (c *Client) Delete(ctx context.Context, fileID, token string) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}
	if err := svc.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return translate(fileID, err)
	}
	return nil
}

func translate(fileID string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", fileID, ErrNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("%s: %s: %w", fileID, apiErr.Message, ErrPermissionDenied)
		}
	}
	return fmt.Errorf("drive request for %s: %w", fileID, err)
}
