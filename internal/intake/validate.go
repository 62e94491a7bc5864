package intake

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const reportDateLayout = "01/02/2006"

func IsStartCommand(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(t, "/start") || t == "new report"
}

func isDashboardCommand(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "dashboard")
}

func ParseAssetType(text string) (AssetType, bool) {
	switch AssetType(strings.ToLower(strings.TrimSpace(text))) {
	case AssetTruck:
		return AssetTruck, true
	case AssetTrailer:
		return AssetTrailer, true
	default:
		return "", false
	}
}

func ParsePayer(text string) (Payer, bool) {
	switch Payer(strings.ToLower(strings.TrimSpace(text))) {
	case PayerDriver:
		return PayerDriver, true
	case PayerCompany:
		return PayerCompany, true
	default:
		return "", false
	}
}

// NormalizeAmount turns free-form money text into a canonical decimal
// string. Currency symbols and spaces are dropped. When both separators
// appear, commas group thousands; a lone comma followed by one or two digits
// is the decimal mark, otherwise commas group thousands.
func NormalizeAmount(text string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(text) {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	switch {
	case strings.Contains(cleaned, ".") && strings.Contains(cleaned, ","):
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case strings.Count(cleaned, ",") == 1:
		idx := strings.Index(cleaned, ",")
		if decimals := len(cleaned) - idx - 1; decimals >= 1 && decimals <= 2 {
			cleaned = cleaned[:idx] + "." + cleaned[idx+1:]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: amount %q has no digits", ErrInvalidInput, text)
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return "", fmt.Errorf("%w: amount %q is not a number", ErrInvalidInput, text)
	}
	return strconv.FormatFloat(value, 'f', -1, 64), nil
}

// AssetLabel derives the row's asset cell from the draft. It is recomputed on
// every call because the trailer path fills TruckNo after TrailerNo.
func AssetLabel(d Draft) string {
	switch d.AssetType {
	case AssetTruck:
		if d.TruckNo != "" {
			return "truck " + d.TruckNo
		}
	case AssetTrailer:
		if d.TrailerNo != "" && d.TruckNo != "" {
			return "TRL " + d.TrailerNo + " (unit " + d.TruckNo + ")"
		}
		if d.TrailerNo != "" {
			return "TRL " + d.TrailerNo
		}
	}
	return ""
}

func ReporterName(u *User) string {
	if u == nil {
		return "unknown"
	}
	if handle := strings.TrimSpace(u.Username); handle != "" {
		return "@" + handle
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return "unknown"
}

func FormatReportDate(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(reportDateLayout)
}
