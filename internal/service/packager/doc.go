// Package packager builds firmware update packages.
//
// A run validates the inputs of a variant, stages the bundled scripts, the
// present images with their md5 sidecars and the generated config in a
// scratch tree, zips the tree with the external archiver and publishes the
// archive into the output directory. The scratch tree is removed however the
// run ends.
package packager
