// Package logx is signalgen's logging layer over zerolog.
//
// Components take a Logger by value and tag it with Comp; dispatcher lines
// carry Signal, Key and Step so one signal's history can be grepped out of
// the JSON file. A Service owns the console and file sinks and swaps them on
// config reload.
package logx
