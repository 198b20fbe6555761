// Package cmd wires the rayin command line.
//
// The root command loads configuration from --config and the RAYIN_*
// environment, builds the application once, and hands it to one of:
//
//	rayin serve      run the HTTP server
//	rayin translate  translate a file or stdin with a stored preset
//	rayin diagnose   check database and auth provider reachability
package cmd
