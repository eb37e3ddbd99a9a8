package flowfakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/flow"
)

var _ flow.HostShell = (*FakeHostShell)(nil)

// FakeHostShell is a configurable in-memory host shell. Each hook can be
// set per test; unset hooks succeed with the zero value. Opened URLs are
// recorded so tests can assert on the authorization request.
type FakeHostShell struct {
	PopupFunc   func(ctx context.Context, url string) (string, error)
	WindowFunc  func(ctx context.Context, url string) (string, error)
	BrowserFunc func(url string) error
	NavFunc     func(url string) error

	lock       sync.Mutex
	openedURLs []string
}

func NewFakeHostShell() *FakeHostShell {
	return &FakeHostShell{}
}

func (f *FakeHostShell) OpenPopup(ctx context.Context, url string) (string, error) {
	f.record(url)
	if f.PopupFunc == nil {
		return "", nil
	}
	return f.PopupFunc(ctx, url)
}

func (f *FakeHostShell) OpenAuthWindow(ctx context.Context, url string) (string, error) {
	f.record(url)
	if f.WindowFunc == nil {
		return "", nil
	}
	return f.WindowFunc(ctx, url)
}

func (f *FakeHostShell) OpenSystemBrowser(url string) error {
	f.record(url)
	if f.BrowserFunc == nil {
		return nil
	}
	return f.BrowserFunc(url)
}

func (f *FakeHostShell) Navigate(url string) error {
	f.record(url)
	if f.NavFunc == nil {
		return nil
	}
	return f.NavFunc(url)
}

// OpenedURLs returns every URL handed to the shell, in order.
func (f *FakeHostShell) OpenedURLs() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.openedURLs...)
}

func (f *FakeHostShell) record(url string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.openedURLs = append(f.openedURLs, url)
}
