// Package tracing turns the events raised through instrumentation/hooking
// into counts that can be printed or served.
package tracing
