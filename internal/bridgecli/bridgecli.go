// Package bridgecli talks to the native collaborator: a command is invoked by
// name with a JSON argument object and answers with a JSON envelope
// {"ok": bool, "result": T, "err": string}.
package bridgecli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Command names understood by the collaborator.
const (
	CmdSetNewSecret   = "set_new_secret"
	CmdCheckSetSecret = "check_set_secret"
	CmdGetPublicKey   = "get_public_key"
)

var (
	// ErrEmptyResult means a command reported success but returned an empty
	// string where a value is required.
	ErrEmptyResult = errors.New("bridgecli: command returned an empty result")
	// ErrMalformedEnvelope means the collaborator's output was not a valid
	// envelope.
	ErrMalformedEnvelope = errors.New("bridgecli: malformed result envelope")
)

// Envelope is the collaborator's reply to one command.
type Envelope[T any] struct {
	OK     bool   `json:"ok"`
	Result T      `json:"result"`
	Err    string `json:"err"`
}

// Runner executes one collaborator command. args is the JSON-encoded argument
// object; the returned bytes are the JSON envelope.
type Runner interface {
	Run(ctx context.Context, command string, args []byte) ([]byte, error)
}

// CommandError is an envelope with ok=false.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bridgecli: %s failed: %s", e.Command, e.Message)
}

// WrapArgs are the arguments of set_new_secret.
type WrapArgs struct {
	Secret  string `json:"secret"`
	Salt    string `json:"salt"`
	RootKey string `json:"rootKey"`
}

// VerifyArgs are the arguments of check_set_secret.
type VerifyArgs struct {
	Secret           string `json:"secret"`
	Salt             string `json:"salt"`
	EncryptedRootKey string `json:"encryptedRootKey"`
}

// PublicKeyArgs are the arguments of get_public_key.
type PublicKeyArgs struct {
	PrivateKey string `json:"privateKey"`
}

// Client is a typed front for a Runner.
type Client struct {
	runner Runner
	logger *slog.Logger
}

// NewClient wraps runner.
func NewClient(runner Runner, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{runner: runner, logger: logger}
}

// WrapSecret wraps rootKey under secret and salt, returning the opaque
// encrypted key.
func (c *Client) WrapSecret(ctx context.Context, secret, salt, rootKey string) (string, error) {
	return c.nonEmpty(ctx, CmdSetNewSecret, WrapArgs{Secret: secret, Salt: salt, RootKey: rootKey})
}

// VerifySecret reports whether secret and salt unwrap encryptedRootKey.
func (c *Client) VerifySecret(ctx context.Context, secret, salt, encryptedRootKey string) (bool, error) {
	return Invoke[bool](ctx, c.runner, CmdCheckSetSecret, VerifyArgs{
		Secret:           secret,
		Salt:             salt,
		EncryptedRootKey: encryptedRootKey,
	})
}

// PublicKey derives the public key matching privateKey.
func (c *Client) PublicKey(ctx context.Context, privateKey string) (string, error) {
	return c.nonEmpty(ctx, CmdGetPublicKey, PublicKeyArgs{PrivateKey: privateKey})
}

func (c *Client) nonEmpty(ctx context.Context, command string, args any) (string, error) {
	s, err := Invoke[string](ctx, c.runner, command, args)
	if err != nil {
		c.logger.Error("collaborator command failed",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)

		return "", err
	}

	if s == "" {
		c.logger.Error("collaborator returned empty result", slog.String("command", command))
		return "", fmt.Errorf("bridgecli: %s: %w", command, ErrEmptyResult)
	}

	return s, nil
}

// Invoke runs command with args and decodes the envelope's result.
func Invoke[T any](ctx context.Context, r Runner, command string, args any) (T, error) {
	var zero T

	in, err := json.Marshal(args)
	if err != nil {
		return zero, fmt.Errorf("bridgecli: encoding %s args: %w", command, err)
	}

	out, err := r.Run(ctx, command, in)
	if err != nil {
		return zero, fmt.Errorf("bridgecli: running %s: %w", command, err)
	}

	var env Envelope[T]
	if err := json.Unmarshal(out, &env); err != nil {
		return zero, fmt.Errorf("%w: %s: %w", ErrMalformedEnvelope, command, err)
	}

	if !env.OK {
		return zero, &CommandError{Command: command, Message: env.Err}
	}

	return env.Result, nil
}

// Reply encodes an envelope. In-process runners use it to answer like the
// native binary does.
func Reply[T any](result T, err error) ([]byte, error) {
	env := Envelope[T]{OK: err == nil, Result: result}
	if err != nil {
		env.Err = err.Error()
	}

	return json.Marshal(env)
}
