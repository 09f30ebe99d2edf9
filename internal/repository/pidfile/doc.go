// Package pidfile persists the pid of a running engine instance.
//
// The FileRepository keeps a single decimal pid in a file on the host
// filesystem. Writes go through a temporary file and a rename so readers
// never observe a partially written pid.
package pidfile
