package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// CheckFFmpeg reports the ffmpeg binary frame extraction will execute. An
// explicit path must point at an executable file; a bare name is resolved
// from PATH.
func CheckFFmpeg(command string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Required for frame extraction",
	}

	command = strings.TrimSpace(command)
	if command == "" {
		command = "ffmpeg"
	}
	result.Command = command

	resolved, err := exec.LookPath(command)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", command)
		return result
	}
	info, err := os.Stat(resolved)
	if err != nil || !isExecutable(info) {
		result.Detail = fmt.Sprintf("binary %q is not executable", resolved)
		return result
	}
	result.Command = resolved
	result.Available = true
	return result
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
