// Package config defines fwpkg settings and helpers to load, validate and
// save them in YAML format.
//
// Every field is optional: Validate fills in the executable's directory as the
// variant root, the working directory as the output directory, the system
// temporary directory for scratch trees and the zip/md5sum tools.
package config
