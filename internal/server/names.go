package server

import "fmt"

// assignName returns desired if it is not taken, otherwise the first of
// desired_1, desired_2, … that is free. It terminates after at most
// len(taken)+1 probes because the suffixes are distinct.
func assignName(desired string, taken map[string]struct{}) string {
	if _, ok := taken[desired]; !ok {
		return desired
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", desired, i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
