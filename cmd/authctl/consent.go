// File: cmd/authctl/consent.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"learnapp_auth/internal/gateway"
)

// lineReader is the single buffered reader over stdin for one session. The
// shell, the code prompt and the consent prompt all read through it, so none of
// them buffers a line meant for another.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader(in io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(in)}
}

// ReadLine returns the next line without its line ending. io.EOF is returned
// only once no input is left.
func (l *lineReader) ReadLine() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// stdinConsent shows the consent URL and reads back the redirect URL the
// provider sent the browser to. An empty line cancels. The read blocks until a
// line arrives; ctx is only checked before prompting.
type stdinConsent struct {
	in  *lineReader
	out io.Writer
}

func newStdinConsent(in *lineReader, out io.Writer) *stdinConsent {
	return &stdinConsent{in: in, out: out}
}

func (c *stdinConsent) Prompt(ctx context.Context, authURL string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	fmt.Fprintf(c.out, "Open this URL to sign in:\n\n  %s\n\nPaste the redirect URL (empty to cancel): ", authURL)

	line, err := c.in.ReadLine()
	if errors.Is(err, io.EOF) {
		return "", "", gateway.ErrConsentCancelled
	}
	if err != nil {
		return "", "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", gateway.ErrConsentCancelled
	}
	return parseRedirect(line)
}

// parseRedirect pulls code and state out of a redirect URL.
func parseRedirect(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", "", gateway.ErrConsentCancelled
	}
	return q.Get("code"), q.Get("state"), nil
}

// approveConsent echoes the state back with a fixed code, as if the user had
// approved immediately.
func approveConsent(_ context.Context, authURL string) (string, string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid consent URL: %w", err)
	}
	return "approved", u.Query().Get("state"), nil
}
