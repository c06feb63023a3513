package memopt

import "os"

func processID() int {
	return os.Getpid()
}
