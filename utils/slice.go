package utils

// UniqueUint deduplicates id slices, e.g. the author ids collected from a
// page of posts before batching a user lookup.
func UniqueUint(slice []uint) []uint {
	keys := make(map[uint]bool)
	list := []uint{}
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			list = append(list, entry)
		}
	}
	return list
}
