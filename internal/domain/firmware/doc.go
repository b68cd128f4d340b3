// Package firmware holds the domain model of a firmware update package:
// the per-run PackageSpec, the declarative Variant descriptors for the
// supported device families, the generated KEY=value configuration and the
// classified errors a packaging run can end with.
package firmware
