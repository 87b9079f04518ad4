package transport

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"go.bug.st/serial/enumerator"
)

// ListPorts returns a best-effort list of available serial port device
// names, sorted and de-duplicated. Callers use it to probe for the sensor
// board instead of brute-force scanning port names.
func ListPorts() []string {
	if ports, err := enumerator.GetDetailedPortsList(); err == nil && len(ports) > 0 {
		seen := make(map[string]struct{}, len(ports))
		out := make([]string, 0, len(ports))
		for _, p := range ports {
			if p == nil || p.Name == "" {
				continue
			}
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, p.Name)
		}
		sort.Strings(out)
		return out
	}

	// Fallbacks when the enumerator returns nothing.
	switch runtime.GOOS {
	case "windows":
		return nil
	case "darwin":
		return listByGlob("/dev/cu.*", "/dev/tty.*")
	default:
		return listByGlob("/dev/ttyUSB*", "/dev/ttyACM*")
	}
}

func listByGlob(patterns ...string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 16)
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		for _, m := range matches {
			if m == "" {
				continue
			}
			if _, err := os.Stat(m); err != nil {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
