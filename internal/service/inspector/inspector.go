package inspector

import (
	"archive/zip"
	"context"
	"crypto/md5" //nolint:gosec // Sidecars are md5sum output; md5 is required to read them.
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/oshokin/fwpkg/internal/domain/firmware"
	"github.com/oshokin/fwpkg/internal/logger"
)

// Status is the outcome of one checksum sidecar check.
type Status string

const (
	// StatusOK means the image matches its sidecar.
	StatusOK Status = "OK"
	// StatusMismatch means the image content differs from the recorded checksum.
	StatusMismatch Status = "MISMATCH"
	// StatusMissing means the sidecar names an image that is not in the archive.
	StatusMissing Status = "MISSING"
	// StatusMalformed means the sidecar is not a valid md5sum line.
	StatusMalformed Status = "MALFORMED"
)

// maxConfigBytes caps how much of a config entry is read.
const maxConfigBytes = 64 << 10

// Entry is one file or directory in the archive.
type Entry struct {
	Name  string
	Size  uint64
	IsDir bool
}

// Check is the verification result of one .md5 sidecar.
type Check struct {
	Sidecar  string
	Target   string
	Expected string
	Actual   string
	Status   Status
}

// Report describes a firmware package archive.
type Report struct {
	// Archive is the inspected file path.
	Archive string
	// Entries are listed in archive order.
	Entries []Entry
	// ConfigName is the archive path of the generated config, empty if there is none.
	ConfigName string
	// Config is the parsed generated config.
	Config *firmware.GeneratedConfig
	// Checks holds one result per checksum sidecar.
	Checks []Check
}

var errMalformedSidecar = errors.New("malformed checksum line")

// Failures describes every check that did not pass.
func (r *Report) Failures() []string {
	var failures []string

	for _, check := range r.Checks {
		if check.Status != StatusOK {
			failures = append(failures, fmt.Sprintf("%s: %s", check.Sidecar, check.Status))
		}
	}

	return failures
}

// Inspect reads the archive at archivePath. Sidecar failures are reported in
// the returned Report and, together, as a *firmware.VerificationError.
func Inspect(ctx context.Context, archivePath string) (*Report, error) {
	ctx = logger.WithName(ctx, "inspector")

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = zr.Close()
	}()

	report := &Report{Archive: archivePath}
	files := make(map[string]*zip.File, len(zr.File))
	configNames := configFileNames()

	for _, file := range zr.File {
		files[file.Name] = file
		report.Entries = append(report.Entries, Entry{
			Name:  file.Name,
			Size:  file.UncompressedSize64,
			IsDir: file.FileInfo().IsDir(),
		})

		if _, ok := configNames[path.Base(file.Name)]; ok && report.ConfigName == "" {
			report.ConfigName = file.Name
		}
	}

	if report.ConfigName != "" {
		if report.Config, err = readConfig(files[report.ConfigName]); err != nil {
			return nil, err
		}
	}

	for _, file := range zr.File {
		if !strings.HasSuffix(file.Name, firmware.ChecksumExt) || file.FileInfo().IsDir() {
			continue
		}

		check, err := verifySidecar(file, files)
		if err != nil {
			return nil, err
		}

		logger.DebugKV(ctx, "Checked sidecar", "sidecar", check.Sidecar, "status", check.Status)
		report.Checks = append(report.Checks, check)
	}

	if failures := report.Failures(); len(failures) > 0 {
		return report, &firmware.VerificationError{Failures: failures}
	}

	return report, nil
}

// configFileNames collects the config file names of every variant.
func configFileNames() map[string]struct{} {
	names := make(map[string]struct{})

	for _, v := range firmware.Variants() {
		if v.ConfigFile != "" {
			names[v.ConfigFile] = struct{}{}
		}
	}

	return names
}

// readConfig parses a generated config entry.
func readConfig(file *zip.File) (*firmware.GeneratedConfig, error) {
	data, err := readEntry(file, maxConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file.Name, err)
	}

	cfg, err := firmware.ParseConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file.Name, err)
	}

	return cfg, nil
}

// verifySidecar compares a sidecar line with the md5 of the entry it names.
// The image is looked up next to the sidecar, as md5sum -c would on the device.
func verifySidecar(sidecar *zip.File, files map[string]*zip.File) (Check, error) {
	check := Check{Sidecar: sidecar.Name}

	data, err := readEntry(sidecar, maxConfigBytes)
	if err != nil {
		return check, fmt.Errorf("read %s: %w", sidecar.Name, err)
	}

	sum, name, err := parseSidecar(string(data))
	if err != nil {
		check.Status = StatusMalformed
		return check, nil
	}

	check.Expected = sum
	check.Target = path.Join(path.Dir(sidecar.Name), name)

	target, ok := files[check.Target]
	if !ok {
		check.Status = StatusMissing
		return check, nil
	}

	if check.Actual, err = md5Entry(target); err != nil {
		return check, fmt.Errorf("hash %s: %w", target.Name, err)
	}

	check.Status = StatusMismatch
	if strings.EqualFold(check.Actual, check.Expected) {
		check.Status = StatusOK
	}

	return check, nil
}

// parseSidecar splits an md5sum line ("<hex>  <name>" or "<hex> *<name>").
func parseSidecar(line string) (string, string, error) {
	line = strings.TrimSpace(line)

	sum, name, ok := strings.Cut(line, " ")
	if !ok || len(sum) != md5.Size*2 {
		return "", "", errMalformedSidecar
	}

	if _, err := hex.DecodeString(sum); err != nil {
		return "", "", errMalformedSidecar
	}

	name = strings.TrimPrefix(strings.TrimLeft(name, " "), "*")
	if name == "" || strings.Contains(name, "/") {
		return "", "", errMalformedSidecar
	}

	return strings.ToLower(sum), name, nil
}

// md5Entry hashes an archive entry.
func md5Entry(file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}

	defer func() {
		_ = rc.Close()
	}()

	hasher := md5.New() //nolint:gosec // See import.
	if _, err = io.Copy(hasher, rc); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// readEntry reads at most limit bytes of an archive entry.
func readEntry(file *zip.File, limit int64) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = rc.Close()
	}()

	return io.ReadAll(io.LimitReader(rc, limit))
}
