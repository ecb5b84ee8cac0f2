package remnawave

import "fmt"

const bytesPerGB = 1024 * 1024 * 1024

// TrafficLimitsGB are the quotas an admin may pick for a campaign.
var TrafficLimitsGB = []int{15, 30, 50, 100}

func IsTrafficLimit(gb int) bool {
	for _, v := range TrafficLimitsGB {
		if v == gb {
			return true
		}
	}
	return false
}

func GBToBytes(gb int) int64 {
	return int64(gb) * bytesPerGB
}

func BytesToGB(b int64) int64 {
	return b / bytesPerGB
}

// FormatBytes renders b with a binary unit, e.g. "1.50 GB".
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	units := []string{"KB", "MB", "GB", "TB"}
	value := float64(b) / 1024
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", value, units[i])
}
