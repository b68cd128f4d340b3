// Package common holds helpers shared by several services.
//
// It provides the Runner abstraction over external tools (the archiver and
// the checksum utility) and its subprocess implementation, so services can be
// tested with a fake runner.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
