package audio

// Drain discards values from ch until it is closed. The session loop hands a
// frame channel it stopped reading to Drain so the producer can finish its
// last send and exit.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
