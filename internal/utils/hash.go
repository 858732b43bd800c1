package utils

import "hash/fnv"

func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// LockKey folds a string into the signed 64-bit key space of pg_advisory_lock.
func LockKey(s string) int64 {
	return int64(HashStringToUint64(s))
}
