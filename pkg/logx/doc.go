// Package logx configures tickline's structured logging.
//
// Logger is a small wrapper on top of zerolog: console output stays readable
// (short timestamp and caller), files are JSON, and outputs can be swapped on
// config reload through Service.Apply. Hot paths can use Sampled to cap their
// volume.
package logx
