// Package processor connects a script host to the audio server.
//
// Callback is the real-time side: it runs the script over each input period
// and copies the result to the output port. Warmup drives the script before
// live audio so its first real callback does not pay for lazy compilation.
// LoadSimulator calls dummyLoad from a background goroutine while audio is
// running, raising a Suppression flag that makes the callback pass audio
// through untouched for the duration.
package processor
