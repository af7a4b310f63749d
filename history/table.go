package history

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

func RenderTable(w io.Writer, rows []Row) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Created At", "Session", "Duration", "Frames", "Result"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, r := range rows {
		result := r.Result
		if r.Error != "" {
			result = "error: " + r.Error
		}
		if r.Partial {
			result += " (partial)"
		}

		sessionID := r.SessionID
		if len(sessionID) > 8 {
			sessionID = sessionID[:8]
		}

		table.Append([]string{
			fmt.Sprintf("%d", r.ID),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			sessionID,
			fmt.Sprintf("%.1f s", r.Duration.Seconds()),
			fmt.Sprintf("%d/%d", r.FramesSent-r.FramesFailed, r.FramesSent),
			result,
		})
	}

	table.Render()
}
