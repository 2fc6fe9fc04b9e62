// Package gpucamera converts frames delivered by a capture session into GPU framebuffers
// and fans them out to consumers, dropping frames rather than queueing them whenever the
// pipeline is still busy with the previous one.
package gpucamera

import "github.com/edaniels/golog"

// Logger is used by cameras and consumers configured without a logger of their own.
var Logger = golog.Global().Named("gpucamera")
