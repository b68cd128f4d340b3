// Package inspector opens a produced firmware package, lists its contents,
// parses the generated config and re-verifies every .md5 sidecar against the
// image it names, the same check the upgrade script runs on the device.
package inspector
