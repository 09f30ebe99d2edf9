// Package fleet runs one operation across many hosts.
//
// Hosts are processed by a bounded worker pool. A failure on one host never
// aborts the operation on another: every host gets its own result and the
// combined error lists each failed host. With fail-fast enabled, hosts not
// yet started when a failure is seen are skipped instead.
package fleet
