package tspdf

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// pdfString escapes text into a PDF literal string "(...)", grounded on
// sign/helpers.go's pdfString.
func pdfString(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ")", "\\)")
	text = strings.ReplaceAll(text, "(", "\\(")
	text = strings.ReplaceAll(text, "\r", "\\r")
	return "(" + text + ")"
}

// pdfDateTime formats t as a PDF date literal, "(D:YYYYMMDDHHmmss+HH'mm')",
// grounded on sign/helpers.go's pdfDateTime.
func pdfDateTime(t time.Time) string {
	_, offsetSeconds := t.Zone()
	offsetDuration := time.Duration(offsetSeconds) * time.Second
	if offsetDuration < 0 {
		offsetDuration = -offsetDuration
	}
	offsetHours := int(math.Floor(offsetDuration.Hours()))
	offsetMinutes := int(offsetDuration.Minutes()) - offsetHours*60

	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
	}

	dateString := "D:" + t.Format("20060102150405") + sign +
		fmt.Sprintf("%02d", offsetHours) + "'" + fmt.Sprintf("%02d", offsetMinutes) + "'"
	return pdfString(dateString)
}
