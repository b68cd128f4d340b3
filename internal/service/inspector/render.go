package inspector

import (
	"fmt"
	"io"
	"strings"
)

// Render writes a human-readable report to w.
func (r *Report) Render(w io.Writer) error {
	var builder strings.Builder

	fmt.Fprintf(&builder, "Package: %s\n\nContents:\n", r.Archive)

	for _, entry := range r.Entries {
		if entry.IsDir {
			fmt.Fprintf(&builder, "  %s\n", entry.Name)
			continue
		}

		fmt.Fprintf(&builder, "  %s (%d bytes)\n", entry.Name, entry.Size)
	}

	if r.Config != nil {
		fmt.Fprintf(&builder, "\nConfig %s:\n", r.ConfigName)

		for _, line := range r.Config.Lines() {
			fmt.Fprintf(&builder, "  %s=%s\n", line.Key, line.Value)
		}
	}

	if len(r.Checks) > 0 {
		builder.WriteString("\nChecksums:\n")

		for _, check := range r.Checks {
			fmt.Fprintf(&builder, "  %s: %s\n", check.Sidecar, check.Status)
		}
	}

	_, err := io.WriteString(w, builder.String())

	return err
}
