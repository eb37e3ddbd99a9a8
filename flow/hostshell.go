package flow

import (
	"context"
	"os/exec"
	"runtime"
)

// PopupOpener opens a popup window on the given URL and returns the
// redirect URL the window ended on.
type PopupOpener interface {
	OpenPopup(ctx context.Context, url string) (string, error)
}

// WindowOpener delegates window creation to the host process and reports
// the redirect URL back over the host's inter-process channel.
type WindowOpener interface {
	OpenAuthWindow(ctx context.Context, url string) (string, error)
}

// BrowserOpener opens a URL in the user's default browser, outside any
// embedded window, so OS-level SSO and device-trust integrations work.
type BrowserOpener interface {
	OpenSystemBrowser(url string) error
}

// Navigator performs a full-page navigation of the host's main window.
type Navigator interface {
	Navigate(url string) error
}

// HostShell is everything a desktop host can provide to the interactive
// flows. The host is purely a transport provider; it never sees tokens.
type HostShell interface {
	PopupOpener
	WindowOpener
	BrowserOpener
	Navigator
}

// ExecBrowser opens URLs with the platform's default-browser launcher.
// No library in use covers this, so it shells out directly.
type ExecBrowser struct{}

var _ BrowserOpener = ExecBrowser{}

func (ExecBrowser) OpenSystemBrowser(rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	return cmd.Start()
}
