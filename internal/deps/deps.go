package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"audiosift/internal/config"
)

// Requirement defines an external dependency audiosift relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements returns the external binaries the pipeline can use. Both are
// optional: without them classification degrades to size mode and conversion
// is skipped, but extraction itself never needs a tool.
func Requirements(cfg *config.Config) []Requirement {
	ffprobe := "ffprobe"
	ffmpeg := "ffmpeg"
	if cfg != nil {
		ffprobe = cfg.FFmpeg.FFprobeBinary
		ffmpeg = cfg.FFmpeg.FFmpegBinary
	}
	return []Requirement{
		{
			Name:        "ffprobe",
			Command:     ffprobe,
			Description: "Duration probing for duration-based classification",
			Optional:    true,
		},
		{
			Name:        "ffmpeg",
			Command:     ffmpeg,
			Description: "OGG to MP3 conversion",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if resolved, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		} else {
			status.Available = true
			status.Command = resolved
		}
		results = append(results, status)
	}
	return results
}
