package script

import (
	"strings"
	"time"
)

// Flag marks how a row is interpreted.
type Flag string

const (
	FlagLine     Flag = "#"
	FlagOption   Flag = "&"
	FlagTerminal Flag = "END"
)

// Side tells which party speaks a line.
type Side string

const (
	SideLeft  Side = "Left"
	SideRight Side = "Right"
)

// Row is one entry of the dialogue table.
type Row struct {
	Flag          Flag    `json:"flag"`
	NodeID        int     `json:"nodeId"`
	Character     string  `json:"character,omitempty"`
	Side          Side    `json:"side,omitempty"`
	Content       string  `json:"content,omitempty"`
	JumpID        int     `json:"jumpId,omitempty"`
	Effect        string  `json:"effect,omitempty"`
	Target        string  `json:"target,omitempty"`
	Delay         float64 `json:"delay,omitempty"` // seconds
	Task          string  `json:"task,omitempty"`
	OptionLabel   string  `json:"optionLabel,omitempty"`
	CostTime      int     `json:"costTime,omitempty"` // seconds
	TotalTimeHint float64 `json:"totalTimeHint,omitempty"`
	Consequence   string  `json:"consequence,omitempty"`
}

// ParseSide maps the sheet's position column onto a Side. Anything that is
// not explicitly right-hand is treated as the other party.
func ParseSide(raw string) Side {
	switch strings.TrimSpace(raw) {
	case "Right", "right", "R", "右":
		return SideRight
	default:
		return SideLeft
	}
}

// IsSelf reports whether the line is authored by the player.
func (r Row) IsSelf() bool {
	return r.Side == SideRight
}

// IsTerminal reports whether the row ends the current run.
func (r Row) IsTerminal() bool {
	return r.Flag == FlagTerminal
}

// DelayDuration converts the delay column to a duration.
func (r Row) DelayDuration() time.Duration {
	if r.Delay <= 0 {
		return 0
	}
	return time.Duration(r.Delay * float64(time.Second))
}

// Caption is the text shown on an option button.
func (r Row) Caption() string {
	if r.OptionLabel != "" {
		return r.OptionLabel
	}
	return r.Content
}

// Node is the ordered group of rows sharing one node id.
type Node []Row

// IsOptionSet reports whether the node presents a player choice.
func (n Node) IsOptionSet() bool {
	if len(n) > 1 {
		return true
	}
	return len(n) == 1 && n[0].Flag == FlagOption
}

// Captions returns the button captions for an option set, in row order.
func (n Node) Captions() []string {
	captions := make([]string, len(n))
	for i, row := range n {
		captions[i] = row.Caption()
	}
	return captions
}

// Consequence returns the first non-empty consequence text of the node.
func (n Node) Consequence() string {
	for _, row := range n {
		if row.Consequence != "" {
			return row.Consequence
		}
	}
	return ""
}
