package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"

	"github.com/xenking/sticker-storefront/internal/domain/album"
)

var _ album.Catalog = (*Client)(nil)

// ListSchools returns every school.
func (c *Client) ListSchools(ctx context.Context) ([]album.School, error) {
	var schools []album.School
	if err := c.do(ctx, http.MethodGet, "/school", nil, nil, &schools); err != nil {
		return nil, errors.Wrap(err, "list schools")
	}
	return schools, nil
}

// ListAlbums returns the albums of a school, or all albums when schoolID is
// empty.
func (c *Client) ListAlbums(ctx context.Context, schoolID string) ([]album.Album, error) {
	path := "/album"
	if schoolID != "" {
		path = "/album/schoolId/" + url.PathEscape(schoolID)
	}
	var albums []album.Album
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &albums); err != nil {
		return nil, errors.Wrap(err, "list albums")
	}
	return albums, nil
}

// GetAlbum returns a single album. It returns album.ErrNotFound for unknown
// ids.
func (c *Client) GetAlbum(ctx context.Context, id string) (*album.Album, error) {
	var a album.Album
	if err := c.do(ctx, http.MethodGet, "/album/"+url.PathEscape(id), nil, nil, &a); err != nil {
		if _, ok := isStatus(err, http.StatusNotFound); ok {
			return nil, album.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get album %q", id)
	}
	return &a, nil
}
