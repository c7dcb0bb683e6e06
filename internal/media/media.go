// Package media turns stored image references into delivery URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

// Resolver maps a product image reference (a Cloudinary public id or a full
// URL) to the URL clients should load.
type Resolver interface {
	URL(ref string) string
}

// Static serves references relative to a fixed base URL.
type Static struct {
	BaseURL string
}

func (s Static) URL(ref string) string {
	if ref == "" || isAbsolute(ref) || s.BaseURL == "" {
		return ref
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}

// Uploader stores an image and returns the reference to save on the product.
type Uploader interface {
	Upload(ctx context.Context, file io.Reader, publicID string) (string, error)
}

const defaultTransformation = "f_auto,q_auto"

type Cloudinary struct {
	cld            *cloudinary.Cloudinary
	transformation string
	logger         *zap.SugaredLogger
}

func NewCloudinary(cld *cloudinary.Cloudinary, logger *zap.SugaredLogger) *Cloudinary {
	cld.Config.URL.Secure = true
	return &Cloudinary{cld: cld, transformation: defaultTransformation, logger: logger}
}

// URL builds an optimised delivery URL. Full Cloudinary upload URLs are
// reduced to their public id first; anything else is returned unchanged.
func (c *Cloudinary) URL(ref string) string {
	if ref == "" {
		return ""
	}

	publicID := ref
	if isAbsolute(ref) {
		id, err := PublicIDFromURL(ref)
		if err != nil {
			return ref
		}
		publicID = id
	}

	img, err := c.cld.Image(publicID)
	if err != nil {
		c.logger.Warnw("cloudinary image ref rejected", "ref", ref, "error", err)
		return ref
	}
	img.Transformation = c.transformation

	out, err := img.String()
	if err != nil {
		c.logger.Warnw("cloudinary url build failed", "ref", ref, "error", err)
		return ref
	}
	return out
}

// Upload stores file under the products folder without overwriting and
// returns its public id.
func (c *Cloudinary) Upload(ctx context.Context, file io.Reader, publicID string) (string, error) {
	resp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:    "products",
		PublicID:  publicID,
		Overwrite: api.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}
	return resp.PublicID, nil
}

// PublicIDFromURL extracts the path after "upload/" from a Cloudinary URL,
// dropping a leading version segment and the file extension.
func PublicIDFromURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	parts := strings.Split(parsed.Path, "/")
	for i, part := range parts {
		if part != "upload" || i+1 >= len(parts) {
			continue
		}
		rest := parts[i+1:]
		if len(rest) > 1 && isVersion(rest[0]) {
			rest = rest[1:]
		}
		id := strings.Join(rest, "/")
		if dot := strings.LastIndex(id, "."); dot > strings.LastIndex(id, "/") {
			id = id[:dot]
		}
		if id == "" {
			break
		}
		return id, nil
	}

	return "", errors.New("failed to extract public ID from URL")
}

func isVersion(seg string) bool {
	if len(seg) < 2 || seg[0] != 'v' {
		return false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
