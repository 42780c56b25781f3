package device

import "strconv"

// Version is a device's OS version pair as reported by ideviceinfo /
// lockdown GetValue.
type Version struct {
	BuildVersion   string // e.g. "12H321"
	ProductVersion string // e.g. "8.4.1"
}

// MajorVersion returns the integer prefix of ProductVersion, or 0 if it
// cannot be parsed.
func (v Version) MajorVersion() int {
	end := 0
	for end < len(v.ProductVersion) && v.ProductVersion[end] >= '0' && v.ProductVersion[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(v.ProductVersion[:end])
	if err != nil {
		return 0
	}
	return n
}
