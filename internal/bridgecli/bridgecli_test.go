package bridgecli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers with a canned envelope and records the last call.
type fakeRunner struct {
	out     string
	err     error
	command string
	args    map[string]string
}

func (f *fakeRunner) Run(_ context.Context, command string, args []byte) ([]byte, error) {
	f.command = command
	f.args = map[string]string{}
	_ = json.Unmarshal(args, &f.args)

	return []byte(f.out), f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWrapSecret(t *testing.T) {
	r := &fakeRunner{out: `{"ok":true,"result":"wrapped","err":""}`}
	c := NewClient(r, quietLogger())

	got, err := c.WrapSecret(context.Background(), "s1", "salt", "k1")
	require.NoError(t, err)
	assert.Equal(t, "wrapped", got)
	assert.Equal(t, CmdSetNewSecret, r.command)
	assert.Equal(t, map[string]string{"secret": "s1", "salt": "salt", "rootKey": "k1"}, r.args)
}

func TestWrapSecret_EmptyResultIsError(t *testing.T) {
	c := NewClient(&fakeRunner{out: `{"ok":true,"result":"","err":""}`}, quietLogger())

	_, err := c.WrapSecret(context.Background(), "s1", "salt", "k1")
	require.ErrorIs(t, err, ErrEmptyResult)
}

func TestVerifySecret(t *testing.T) {
	r := &fakeRunner{out: `{"ok":true,"result":true,"err":""}`}
	c := NewClient(r, quietLogger())

	ok, err := c.VerifySecret(context.Background(), "s1", "salt", "wrapped")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, CmdCheckSetSecret, r.command)
	assert.Equal(t, "wrapped", r.args["encryptedRootKey"])

	r.out = `{"ok":true,"result":false,"err":""}`
	ok, err = c.VerifySecret(context.Background(), "bad", "salt", "wrapped")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublicKey(t *testing.T) {
	r := &fakeRunner{out: `{"ok":true,"result":"pub","err":""}`}

	got, err := NewClient(r, quietLogger()).PublicKey(context.Background(), "priv")
	require.NoError(t, err)
	assert.Equal(t, "pub", got)
	assert.Equal(t, CmdGetPublicKey, r.command)
	assert.Equal(t, "priv", r.args["privateKey"])
}

func TestInvoke_CommandError(t *testing.T) {
	r := &fakeRunner{out: `{"ok":false,"result":null,"err":"bad key"}`}

	_, err := NewClient(r, quietLogger()).PublicKey(context.Background(), "priv")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, CmdGetPublicKey, cmdErr.Command)
	assert.Equal(t, "bad key", cmdErr.Message)
}

func TestInvoke_MalformedEnvelope(t *testing.T) {
	_, err := Invoke[string](context.Background(), &fakeRunner{out: "not json"}, "x", nil)
	require.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestInvoke_RunnerError(t *testing.T) {
	boom := errors.New("boom")

	_, err := Invoke[string](context.Background(), &fakeRunner{err: boom}, "x", nil)
	require.ErrorIs(t, err, boom)
}

func TestReply(t *testing.T) {
	out, err := Reply("v", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"result":"v","err":""}`, string(out))

	out, err = Reply(false, errors.New("nope"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"result":false,"err":"nope"}`, string(out))
}

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}

	path := filepath.Join(t.TempDir(), "ctb-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700))

	return path
}

func TestExecRunner_Success(t *testing.T) {
	// Echo the command name as the result and require stdin to be passed.
	path := writeScript(t, `read -r args
[ -n "$args" ] || exit 3
printf '{"ok":true,"result":"%s","err":""}' "$1"
`)

	got, err := Invoke[string](context.Background(), ExecRunner{Path: path}, CmdGetPublicKey, PublicKeyArgs{PrivateKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, CmdGetPublicKey, got)
}

func TestExecRunner_FailureEnvelopeOnNonZeroExit(t *testing.T) {
	path := writeScript(t, `printf '{"ok":false,"result":"","err":"locked"}'
exit 1
`)

	_, err := Invoke[string](context.Background(), ExecRunner{Path: path}, "x", nil)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "locked", cmdErr.Message)
}

func TestExecRunner_NonZeroExitQuotesStderr(t *testing.T) {
	path := writeScript(t, `echo "no such repo" >&2
exit 2
`)

	_, err := ExecRunner{Path: path}.Run(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such repo")
}

func TestExecRunner_Timeout(t *testing.T) {
	path := writeScript(t, "exec sleep 5\n")

	_, err := ExecRunner{Path: path, Timeout: 50 * time.Millisecond}.Run(context.Background(), "x", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
