package cloudinary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"clipstack/internal/config"
	"clipstack/internal/domain"
	"clipstack/internal/metrics"
	"clipstack/internal/ports"
)

var _ ports.Hosting = (*Client)(nil)

type Client struct {
	cfg  config.Cloudinary
	http *http.Client
	now  func() time.Time
}

func New(cfg config.Cloudinary) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
		now:  time.Now,
	}
}

// PublicID builds the deterministic asset path {folder}/{owner}/{name}.
func (c *Client) PublicID(ownerKey, name string) string {
	owner := Clean(ownerKey)
	if owner == "" {
		owner = "anonymous"
	}
	name = Clean(name)
	if name == "" {
		name = "video"
	}
	return path.Join(c.cfg.Folder, owner, name)
}

// Clean keeps only characters that are safe inside a public id segment.
func Clean(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r == '_' || r == '-' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Upload pushes the video under publicID, transcoded to mp4, overwriting any
// previous asset with the same id. The full provider response is returned.
func (c *Client) Upload(ctx context.Context, r io.Reader, publicID string) (domain.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()
	defer observe("upload", time.Now())

	owner := path.Base(path.Dir(publicID))
	params := c.sign(map[string]string{
		"public_id":       publicID,
		"overwrite":       "true",
		"unique_filename": "false",
		"format":          "mp4",
		"tags":            c.cfg.Folder + "," + owner,
	})

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		pw.CloseWithError(writeForm(mw, params, path.Base(publicID)+".mp4", r))
	}()
	// the transport may close the body after Do returns; r must not be read
	// once Upload is done
	defer func() {
		pr.Close()
		<-written
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("video", "upload"), pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	log.Ctx(ctx).Info().Str("public_id", publicID).Msg("uploading video to hosting provider")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}
	defer resp.Body.Close()

	var meta domain.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: decode response (HTTP %d): %v", domain.ErrUpload, resp.StatusCode, err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpload, resp.StatusCode, errorMessage(meta))
	}
	if meta.String("secure_url") == "" {
		return nil, fmt.Errorf("%w: secure_url missing in response", domain.ErrUpload)
	}

	if !meta.Complete() {
		log.Ctx(ctx).Warn().
			Str("public_id", publicID).
			Interface("metadata", meta).
			Msg("video uploaded but duration/resolution/size missing")
	}

	return meta, nil
}

// Exists reports whether the asset is still present. Only a provider 404
// counts as missing; ambiguous failures report true so live data is kept.
func (c *Client) Exists(ctx context.Context, publicID string) bool {
	if publicID == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AdminTimeout)
	defer cancel()
	defer observe("exists", time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resourceURL(publicID), nil)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("public_id", publicID).Msg("build resource request")
		return true
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("public_id", publicID).Msg("resource check failed")
		return true
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		log.Ctx(ctx).Warn().Str("public_id", publicID).Msg("resource not found at hosting provider")
		return false
	case resp.StatusCode >= 300:
		log.Ctx(ctx).Error().Int("status", resp.StatusCode).Str("public_id", publicID).Msg("unexpected resource check status")
	}
	return true
}

// Delete removes the asset. An already missing asset is not an error.
func (c *Client) Delete(ctx context.Context, publicID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AdminTimeout)
	defer cancel()
	defer observe("delete", time.Now())

	params := c.sign(map[string]string{
		"public_id":  publicID,
		"invalidate": "true",
	})
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("video", "destroy"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("destroy %s: %w", publicID, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("destroy %s: decode response (HTTP %d): %w", publicID, resp.StatusCode, err)
	}

	switch result, _ := body["result"].(string); result {
	case "ok", "not found":
		return nil
	case "":
		return fmt.Errorf("destroy %s: HTTP %d: %s", publicID, resp.StatusCode, errorMessage(body))
	default:
		return fmt.Errorf("destroy %s: %s", publicID, result)
	}
}

func (c *Client) endpoint(resource, action string) string {
	return fmt.Sprintf("%s/v1_1/%s/%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.CloudName, resource, action)
}

func (c *Client) resourceURL(publicID string) string {
	segs := strings.Split(publicID, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/v1_1/%s/resources/video/upload/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.CloudName, strings.Join(segs, "/"))
}

// sign adds timestamp, api_key and signature to params using the provider's
// SHA-1 request signing scheme.
func (c *Client) sign(params map[string]string) map[string]string {
	params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
	params["signature"] = Signature(params, c.cfg.APISecret)
	params["api_key"] = c.cfg.APIKey
	return params
}

// Signature is sha1("k1=v1&k2=v2..." + secret) over the sorted, non-empty params.
func Signature(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		switch k {
		case "file", "api_key", "signature", "resource_type", "cloud_name":
			continue
		}
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func writeForm(mw *multipart.Writer, params map[string]string, filename string, r io.Reader) error {
	for k, v := range params {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

func errorMessage(body map[string]any) string {
	if e, ok := body["error"].(map[string]any); ok {
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	if msg, ok := body["error"].(string); ok {
		return msg
	}
	return "unknown provider error"
}

func observe(op string, start time.Time) {
	metrics.ProviderDuration.WithLabelValues("cloudinary", op).Observe(time.Since(start).Seconds())
}

