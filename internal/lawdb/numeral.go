package lawdb

import (
	"strconv"
	"strings"
)

var digits = []rune("零一二三四五六七八九")

// Numeral writes n in Chinese numerals as used in article headings,
// e.g. 219 -> 二百一十九, 10 -> 十. Values outside 1..9999 stay Arabic.
func Numeral(n int) string {
	if n <= 0 || n >= 10000 {
		return strconv.Itoa(n)
	}

	units := []string{"千", "百", "十", ""}
	parts := []int{n / 1000, n / 100 % 10, n / 10 % 10, n % 10}

	var b strings.Builder
	started, pendingZero := false, false
	for i, d := range parts {
		if d == 0 {
			if started {
				pendingZero = true
			}
			continue
		}
		if pendingZero {
			b.WriteRune(digits[0])
			pendingZero = false
		}
		// a leading ten is written 十, not 一十
		if !(i == 2 && d == 1 && !started) {
			b.WriteRune(digits[d])
		}
		b.WriteString(units[i])
		started = true
	}
	return b.String()
}
