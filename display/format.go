package display

// itoa converts an integer to a string without pulling fmt into the
// firmware image.
func itoa(n int32) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	if negative {
		n = -n
	}

	temp := n
	digits := 0
	for temp > 0 {
		digits++
		temp /= 10
	}
	if negative {
		digits++
	}

	buf := make([]byte, digits)
	pos := digits - 1
	for n > 0 {
		buf[pos] = byte('0' + n%10)
		n /= 10
		pos--
	}
	if negative {
		buf[0] = '-'
	}

	return string(buf)
}

// tenths renders n as a fixed-point value with one decimal, so 53 comes
// out as "5.3" and 50 as "5.0".
func tenths(n int32) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return sign + itoa(n/10) + "." + itoa(n%10)
}
