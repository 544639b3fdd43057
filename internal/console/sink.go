package console

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	tperr "termphyrio/internal/errors"
	"termphyrio/internal/metrics"
	"termphyrio/internal/records"
	"termphyrio/internal/session"
	"termphyrio/util"
)

// The methods below implement core.Sink.  They run on the coordinator
// loop, which is the only user of order, labels and active.

// AppendText writes output of the active session as it arrives.
// Output of other sessions is kept by the coordinator for replay.
func (c *Console) AppendText(id uuid.UUID, text string) {
	if id != c.active {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, text)
}

func (c *Console) SessionAdded(info session.Info, index int) {
	c.order = append(c.order, info.ID)
	c.labels[info.ID] = info.Endpoint.String()
	c.printf("[%d] %s: connecting...\n", index, c.labels[info.ID])
}

func (c *Console) SessionChanged(info session.Info) {
	switch info.Status {
	case session.Connected:
		c.printf("[%d] %s: connected\n", c.position(info.ID), c.labels[info.ID])
	case session.Failed:
		c.printf("[%d] %s: failed (%s): %v\n", c.position(info.ID), c.labels[info.ID],
			tperr.Classify(info.Err), info.Err)
	}
}

func (c *Console) SessionRemoved(id uuid.UUID, err error) {
	pos, label := c.position(id), c.labels[id]
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	delete(c.labels, id)
	if err != nil {
		c.printf("\n[%d] %s: closed: %v\n", pos, label, err)
		return
	}
	c.printf("\n[%d] %s: closed\n", pos, label)
}

func (c *Console) Activated(id uuid.UUID, replay string) {
	c.active = id
	if id == uuid.Nil {
		c.printf("no open sessions – :open [user@]host[:port]\n")
		return
	}
	c.printf("\n── [%d] %s ──\n%s", c.position(id), c.labels[id], replay)
}

// Recall stages line; an empty input line sends it.
func (c *Console) Recall(id uuid.UUID, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = line
	if line == "" {
		fmt.Fprintf(c.out, "(recall cleared)\n")
		return
	}
	fmt.Fprintf(c.out, "(recall) %s   – press Enter to send\n", util.SanitizeForLog(line))
}

func (c *Console) Notice(msg string) {
	c.printf("* %s\n", msg)
}

func (c *Console) Sessions(list []session.Info, active uuid.UUID) {
	if len(list) == 0 {
		c.printf("no sessions\n")
		return
	}
	rows := make([][]string, len(list))
	for i, info := range list {
		mark := " "
		if info.ID == active {
			mark = "*"
		}
		status := info.Status.String()
		if info.Err != nil {
			status += ": " + info.Err.Error()
		}
		rows[i] = []string{
			mark + strconv.Itoa(i+1),
			info.ID.String()[:8],
			info.Endpoint.String(),
			time.Since(info.CreatedAt).Truncate(time.Second).String(),
			status,
		}
	}
	c.table([]string{" #", "ID", "ENDPOINT", "AGE", "STATUS"}, rows)
}

func (c *Console) Records(list []records.Record) {
	if len(list) == 0 {
		c.printf("no saved connections\n")
		return
	}
	rows := make([][]string, len(list))
	for i, r := range list {
		rows[i] = []string{"#" + strconv.Itoa(i+1), util.UserAtHost(r.Username, r.Host, r.Port)}
	}
	c.table([]string{"#", "CONNECTION"}, rows)
}

func (c *Console) History(id uuid.UUID, lines []string) {
	if len(lines) == 0 {
		c.printf("[%d] no history\n", c.position(id))
		return
	}
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%4d  %s\n", i+1, l)
	}
	c.printf("%s", b.String())
}

func (c *Console) Stats(snap metrics.Snapshot) {
	rows := [][]string{
		{"uptime", snap.Uptime},
		{"sessions active", strconv.FormatInt(snap.SessionsActive, 10)},
		{"sessions connected", strconv.FormatInt(snap.SessionsConnected, 10)},
		{"sessions failed", strconv.FormatInt(snap.SessionsFailed, 10)},
		{"sessions closed", strconv.FormatInt(snap.SessionsClosed, 10)},
		{"bytes in", strconv.FormatInt(snap.BytesIn, 10)},
		{"bytes out", strconv.FormatInt(snap.BytesOut, 10)},
		{"errors", strconv.FormatInt(snap.ErrorsTotal, 10)},
	}
	if snap.LastErrorMessage != "" {
		rows = append(rows, []string{"last error", snap.LastError + " " + snap.LastErrorMessage})
	}
	c.table([]string{"METRIC", "VALUE"}, rows)
}

func (c *Console) table(headers []string, rows [][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	writeTable(c.out, headers, rows)
}

// position is the 1-based place of id in the session list, or 0.
func (c *Console) position(id uuid.UUID) int {
	for i, oid := range c.order {
		if oid == id {
			return i + 1
		}
	}
	return 0
}
