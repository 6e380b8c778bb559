package execution

import "log"

// logf matches rickover's plain log.Printf texture (services, dequeuer):
// no logging wrapper, just the stdlib logger.
func logf(format string, args ...any) {
	log.Printf(format, args...)
}
