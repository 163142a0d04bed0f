package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// maxValueBytes caps how much of a lookup response body is read.
const maxValueBytes = 1 << 20

// Registration is the body of POST /user/register. PrivKey is the root key
// wrapped under the user's secret and Salt.
type Registration struct {
	Email   string `json:"email"`
	PubKey  string `json:"pub_key"`
	PrivKey string `json:"priv_key"`
	Salt    string `json:"salt"`
}

// Salt returns the key-derivation salt registered for email.
func (c *Client) Salt(ctx context.Context, email string) (string, error) {
	return c.lookup(ctx, "/user/salt", "email", NormalizeEmail(email))
}

// EncryptedKey returns the wrapped root key registered for email.
func (c *Client) EncryptedKey(ctx context.Context, email string) (string, error) {
	return c.lookup(ctx, "/user/priv", "email", NormalizeEmail(email))
}

// PublicKey returns the public key registered for email.
func (c *Client) PublicKey(ctx context.Context, email string) (string, error) {
	return c.lookup(ctx, "/user/pub", "email", NormalizeEmail(email))
}

// EmailForPublicKey returns the email registered for a public key.
func (c *Client) EmailForPublicKey(ctx context.Context, pubKey string) (string, error) {
	return c.lookup(ctx, "/user/email", "pub_key", pubKey)
}

// UserExists reports whether a salt lookup for email succeeds. Any failure,
// including network errors, reads as "not registered".
func (c *Client) UserExists(ctx context.Context, email string) bool {
	resp, err := c.do(ctx, http.MethodGet, "/user/salt?"+url.Values{"email": {NormalizeEmail(email)}}.Encode(), nil)
	if err != nil {
		c.logger.Debug("user existence check failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Register creates the user's directory entry. Only HTTP 200 counts as
// success; other 2xx codes return a *DirectoryError wrapping
// ErrUnexpectedStatus.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	reg.Email = NormalizeEmail(reg.Email)

	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("directory: encoding registration: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/user/register", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &DirectoryError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Request.Header.Get(requestIDHdr),
			Message:    "registration not accepted",
			Err:        ErrUnexpectedStatus,
		}
	}

	c.logger.Info("user registered in directory")

	return nil
}

func (c *Client) lookup(ctx context.Context, path, param, value string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, path+"?"+url.Values{param: {value}}.Encode(), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxValueBytes))
	if err != nil {
		return "", fmt.Errorf("directory: reading %s response: %w", path, err)
	}

	return decodeValue(raw), nil
}

// decodeValue accepts either a JSON string literal or a bare text body.
func decodeValue(raw []byte) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return strings.TrimSpace(string(raw))
}
