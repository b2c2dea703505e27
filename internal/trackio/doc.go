// Package trackio orchestrates reading a track out of an image and checking
// flux captures against it.
//
// A Loader scopes each image to one call: it opens the image through the
// helper, fetches and assembles the requested track, and always closes the
// image before returning. Assembly and range errors are tagged as validation
// failures; helper failures keep their external tool classification.
package trackio
