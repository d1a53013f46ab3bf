package deps

import (
	"os/exec"
	"strings"
)

// Status represents the installation status of a dependency
type Status struct {
	Name      string
	Installed bool
	Path      string
	Version   string
	Required  bool
	Purpose   string
}

// Tool describes an external program livescribe shells out to.
type Tool struct {
	Name        string
	VersionFlag string
	Required    bool
	Purpose     string
}

// Tools lists the external programs used at runtime.
var Tools = []Tool{
	{Name: "pw-record", VersionFlag: "--version", Required: true, Purpose: "audio capture"},
	{Name: "pw-cli", VersionFlag: "--version", Required: false, Purpose: "PipeWire health check"},
	{Name: "notify-send", VersionFlag: "--version", Required: false, Purpose: "desktop notifications"},
	{Name: "wl-copy", VersionFlag: "--version", Required: false, Purpose: "transcript --copy"},
}

// Check looks tool up in PATH and, if found, records the first line its
// version flag prints.
func Check(tool Tool) Status {
	status := Status{Name: tool.Name, Required: tool.Required, Purpose: tool.Purpose}

	path, err := exec.LookPath(tool.Name)
	if err != nil {
		return status
	}
	status.Installed = true
	status.Path = path

	if tool.VersionFlag == "" {
		return status
	}
	output, err := exec.Command(path, tool.VersionFlag).Output()
	if err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}

	return status
}

// CheckAll checks every entry in Tools.
func CheckAll() []Status {
	out := make([]Status, 0, len(Tools))
	for _, t := range Tools {
		out = append(out, Check(t))
	}
	return out
}

// Missing returns the required tools that are not installed.
func Missing(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if s.Required && !s.Installed {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
