package bot

import (
	"fmt"
	"strings"

	"github.com/verdel/torrent-telegram-bot/engine"
)

var byteAbbrevs = []struct {
	factor float64
	suffix string
}{
	{1 << 50, "PB"},
	{1 << 40, "TB"},
	{1 << 30, "GB"},
	{1 << 20, "MB"},
	{1 << 10, "kB"},
	{1, "bytes"},
}

func humanizeBytes(n int64) string {
	if n == 1 {
		return "1 byte"
	}
	for _, a := range byteAbbrevs {
		if float64(n) >= a.factor {
			return fmt.Sprintf("%.2f %s", float64(n)/a.factor, a.suffix)
		}
	}
	return fmt.Sprintf("%.2f bytes", float64(n))
}

// formatSnapshot renders one torrent as a Markdown message. In-progress
// torrents show download telemetry, finished ones seeding telemetry.
func formatSnapshot(s engine.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*%s*\n", s.Name)
	fmt.Fprintf(&b, "Status: %s\n", s.Status)

	if !s.Complete() {
		eta := "unknown"
		if s.ETA > 0 {
			eta = s.ETA.String()
		}
		fmt.Fprintf(&b, "Percent: %.2f%%\n", s.ProgressPercent)
		fmt.Fprintf(&b, "Speed: %s/s\n", humanizeBytes(s.DownloadRate))
		fmt.Fprintf(&b, "ETA: %s\n", eta)
		fmt.Fprintf(&b, "Peers: %d", s.PeersDown)
	} else {
		fmt.Fprintf(&b, "Speed: %s/s\n", humanizeBytes(s.UploadRate))
		fmt.Fprintf(&b, "Peers: %d\n", s.PeersUp)
		fmt.Fprintf(&b, "Ratio: %.2f", s.Ratio)
	}

	return b.String()
}
