package models

import "sort"

// RollValue parses a roll number the way every ordered view must: the
// leading run of digits is the numeric value, anything unparseable is 0 so
// that non-numeric rolls tie and keep their relative input order.
func RollValue(roll string) int {
	i := 0
	for i < len(roll) && (roll[i] == ' ' || roll[i] == '\t') {
		i++
	}
	value := 0
	seen := false
	for ; i < len(roll); i++ {
		ch := roll[i]
		if ch < '0' || ch > '9' {
			break
		}
		value = value*10 + int(ch-'0')
		seen = true
	}
	if !seen {
		return 0
	}
	return value
}

// SortStudentsByRoll orders students ascending by numeric roll number.
// The sort is stable so ties (including all-unparseable rolls) preserve
// their input order.
func SortStudentsByRoll(students []Student) {
	sort.SliceStable(students, func(i, j int) bool {
		return RollValue(students[i].RollNumber) < RollValue(students[j].RollNumber)
	})
}
