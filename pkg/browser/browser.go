package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// responseWait bounds how long a failed navigation may wait for the network
// response event. A refused render (PDF download) produces the response
// before Navigate returns its error; a DNS or connection failure never will.
const responseWait = 2 * time.Second

// FetchResult is the outcome of navigating to a URL.
type FetchResult struct {
	ContentType string
	HTML        string
	Text        string
}

// IsPDF reports whether the fetched document is a PDF.
func (r *FetchResult) IsPDF() bool {
	return strings.Contains(r.ContentType, "application/pdf")
}

// Browser wraps a single headless Chromium instance shared by all workers.
// Each job gets its own page via NewSession.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// Launch starts a headless browser. binPath may be empty to use the bundled
// lookup.
func Launch(binPath string) (*Browser, error) {
	l := launcher.New().Headless(true)
	if binPath != "" {
		l = l.Bin(binPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Browser{browser: b, launcher: l}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	return err
}

// Session is one page, exclusively owned by a single executing job.
type Session struct {
	page *rod.Page
}

// NewSession opens a fresh page bound to ctx.
func (b *Browser) NewSession(ctx context.Context) (*Session, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &Session{page: page.Context(ctx)}, nil
}

// Close releases the page. Safe to call on every exit path.
func (s *Session) Close() error {
	return s.page.Close()
}

// Fetch navigates to url and returns the response content type plus, for
// non-PDF documents, the rendered HTML and visible body text. A navigation
// aborted because the browser refused to render the document (e.g. a PDF
// download) still yields the content type for classification.
func (s *Session) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	page := s.page.Context(ctx)

	var response proto.NetworkResponseReceived
	waitResponse := page.WaitEvent(&response)

	navErr := page.Navigate(url)

	result := &FetchResult{}
	if navErr != nil {
		// No response event may ever fire for this navigation; give it a
		// moment to surface the content type, then fail fast.
		waitWithTimeout(waitResponse, responseWait)
		if response.Response != nil {
			result.ContentType = response.Response.MIMEType
		}
		if result.IsPDF() {
			return result, nil
		}
		return nil, fmt.Errorf("navigate %s: %w", url, navErr)
	}

	waitResponse()
	if response.Response != nil {
		result.ContentType = response.Response.MIMEType
	}
	if result.IsPDF() {
		return result, nil
	}

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for load: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("capture html: %w", err)
	}
	result.HTML = html

	body, err := page.Element("body")
	if err != nil {
		return nil, fmt.Errorf("locate body: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	result.Text = text

	return result, nil
}

// waitWithTimeout runs wait and reports whether it finished within d. The
// wait goroutine unblocks when its page context is cancelled, at the latest
// when the session closes.
func waitWithTimeout(wait func(), d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
