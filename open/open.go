// Package open hands a path or URL to the desktop's default handler.
package open

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/playbridge/playbridge/constant"
)

// Start opens target without waiting for the handler to exit.
func Start(target string) error {
	cmd, err := Command(target)
	if err != nil {
		return err
	}
	return cmd.Start()
}

// Command returns the handler invocation for target on this platform.
func Command(target string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case constant.Windows:
		rundll := filepath.Join(os.Getenv("SYSTEMROOT"), "System32", "rundll32.exe")
		return exec.Command(rundll, "url.dll,FileProtocolHandler", target), nil
	case constant.Darwin:
		return exec.Command("open", target), nil
	case constant.Linux:
		return exec.Command("xdg-open", target), nil
	case constant.Android:
		return exec.Command("termux-open", target), nil
	default:
		return nil, fmt.Errorf("open %s: unsupported OS %s", target, runtime.GOOS)
	}
}
