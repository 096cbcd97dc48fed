package child

import (
	"os"
	"time"
)

// readFileRetry rereads briefly to smooth over the write becoming visible
// after the child is reaped.
func readFileRetry(path string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	for i := 0; i < 20; i++ {
		b, err = os.ReadFile(path)
		if err == nil {
			return b, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return b, err
}
