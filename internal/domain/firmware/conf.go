package firmware

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// errMalformedConfigLine is returned by ParseConfig for lines without a KEY=value form.
var errMalformedConfigLine = errors.New("malformed config line")

// ConfigLine is a single KEY=value entry.
type ConfigLine struct {
	Key   string
	Value string
}

// GeneratedConfig is the ordered KEY=value text read by the upgrade script on the device.
type GeneratedConfig struct {
	lines []ConfigLine
}

// Add appends a line.
func (c *GeneratedConfig) Add(key, value string) {
	c.lines = append(c.lines, ConfigLine{Key: key, Value: value})
}

// Len returns the number of lines.
func (c *GeneratedConfig) Len() int {
	return len(c.lines)
}

// Lines returns a copy of the lines in order.
func (c *GeneratedConfig) Lines() []ConfigLine {
	return append([]ConfigLine(nil), c.lines...)
}

// Get returns the raw value of key.
func (c *GeneratedConfig) Get(key string) (string, bool) {
	for _, line := range c.lines {
		if line.Key == key {
			return line.Value, true
		}
	}

	return "", false
}

// Keys returns the keys in order.
func (c *GeneratedConfig) Keys() []string {
	keys := make([]string, 0, len(c.lines))
	for _, line := range c.lines {
		keys = append(keys, line.Key)
	}

	return keys
}

// String renders the config, one newline-terminated line per entry.
func (c *GeneratedConfig) String() string {
	var builder strings.Builder

	for _, line := range c.lines {
		builder.WriteString(line.Key)
		builder.WriteByte('=')
		builder.WriteString(line.Value)
		builder.WriteByte('\n')
	}

	return builder.String()
}

// Quote wraps s in shell double quotes.
func Quote(s string) string {
	return `"` + s + `"`
}

// ShellRef references a staged image through the PREFIX and VERSION
// variables, so the upgrade script resolves the name at install time.
func ShellRef(assetName string) string {
	return Quote("${PREFIX}${VERSION}" + NameSeparator + assetName)
}

// ComposeConfig builds the config for a run of variant v.
// staged lists the optional assets that were actually bundled and
// packageName is the base name of the bundled package file, if any.
func ComposeConfig(v *Variant, spec *PackageSpec, staged []OptionalAsset, packageName string) *GeneratedConfig {
	cfg := new(GeneratedConfig)

	if v.IdentityLines {
		if spec.Prefix != "" {
			cfg.Add("PREFIX", Quote(spec.PrefixValue()))
		}

		cfg.Add("VERSION", Quote(spec.Version))
	}

	for _, asset := range staged {
		if asset.ConfigKey == "" {
			continue
		}

		cfg.Add(asset.ConfigKey, ShellRef(asset.Name))
	}

	if spec.UpgradeDisabled && v.SupportsUpgradeDisabled() {
		cfg.Add(v.UpgradeDisabledKey, "1")
	}

	if packageName != "" && v.SupportsPackage() {
		cfg.Add(v.PackageKey, packageName)
	}

	return cfg
}

// ParseConfig reads KEY=value text. Blank lines and # comments are skipped.
func ParseConfig(text string) (*GeneratedConfig, error) {
	cfg := new(GeneratedConfig)
	scanner := bufio.NewScanner(strings.NewReader(text))

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("line %d %q: %w", lineNo, line, errMalformedConfigLine)
		}

		cfg.Add(strings.TrimSpace(key), value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return cfg, nil
}
