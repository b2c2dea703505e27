// Package caps adapts the external track-decoding helper that reads IPF
// images.
//
// The helper is driven as a subprocess speaking a line-oriented robot
// protocol (IMG, TRK, BUF, TIM, SEC, WEAK and ERR records). Client.Open
// returns an Image whose Track method copies each track out into a
// track.RawTrack; Image.Close tears the helper state down and only logs
// failures. Helper failures surface as *CallError values that match
// services.ErrExternalTool.
package caps
