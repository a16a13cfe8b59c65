package script

import (
	"log"
	"strconv"
	"strings"

	model "github.com/zhouzirui/z-inbox/backend/internal/model/script"
)

type column int

const (
	colFlag column = iota
	colNodeID
	colCharacter
	colSide
	colContent
	colJumpID
	colEffect
	colTarget
	colDelay
	colTask
	colOptionLabel
	colReserved
	colCostTime
	colTotalTime
	colConsequence
	columnCount
)

var columnNames = [columnCount]string{
	"flag", "nodeId", "character", "side", "content", "jumpId", "effect",
	"target", "delay", "task", "optionLabel", "reserved", "costTime",
	"totalTimeHint", "consequence",
}

// headerAliases maps normalised header captions onto columns. English names
// and the Chinese captions used by the shipped workbook are both accepted.
var headerAliases = map[string]column{
	"flag":          colFlag,
	"标志":            colFlag,
	"id":            colNodeID,
	"nodeid":        colNodeID,
	"character":     colCharacter,
	"人物":            colCharacter,
	"side":          colSide,
	"position":      colSide,
	"位置":            colSide,
	"content":       colContent,
	"内容":            colContent,
	"jumpid":        colJumpID,
	"跳转":            colJumpID,
	"effect":        colEffect,
	"效果":            colEffect,
	"target":        colTarget,
	"目标":            colTarget,
	"delay":         colDelay,
	"延迟":            colDelay,
	"task":          colTask,
	"任务":            colTask,
	"optionlabel":   colOptionLabel,
	"optiondesc":    colOptionLabel,
	"选项描述":          colOptionLabel,
	"costtime":      colCostTime,
	"消耗时间":          colCostTime,
	"totaltime":     colTotalTime,
	"totaltimehint": colTotalTime,
	"总时间":           colTotalTime,
	"consequence":   colConsequence,
	"后果":            colConsequence,
}

// layout maps columns to record indexes.
type layout [columnCount]int

func positionalLayout() layout {
	var l layout
	for i := range l {
		l[i] = i
	}
	return l
}

// detectLayout reads column positions from the header row. When the node id
// column cannot be found by name the sheet is read by position (A..O).
func detectLayout(header []string) layout {
	var l layout
	for i := range l {
		l[i] = -1
	}

	for idx, caption := range header {
		key := strings.ToLower(strings.TrimSpace(caption))
		key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
		if col, ok := headerAliases[key]; ok && l[col] < 0 {
			l[col] = idx
		}
	}

	if l[colNodeID] < 0 {
		return positionalLayout()
	}
	return l
}

func (l layout) cell(record []string, col column) string {
	idx := l[col]
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parse converts one record into a row. Cells that fail to parse default to
// their zero value; only a bad node id drops the row.
func (l layout) parse(line int, record []string) (model.Row, bool) {
	rawID := l.cell(record, colNodeID)
	id, ok := parseInt(rawID)
	if !ok {
		if rawID != "" || !isBlank(record) {
			log.Printf("[script] dropping row: %v", &RowParseError{Line: line, Column: columnNames[colNodeID], Value: rawID})
		}
		return model.Row{}, false
	}

	row := model.Row{
		Flag:        parseFlag(l.cell(record, colFlag)),
		NodeID:      id,
		Character:   l.cell(record, colCharacter),
		Side:        model.ParseSide(l.cell(record, colSide)),
		Content:     l.cell(record, colContent),
		Effect:      l.cell(record, colEffect),
		Target:      l.cell(record, colTarget),
		Task:        l.cell(record, colTask),
		OptionLabel: l.cell(record, colOptionLabel),
		Consequence: l.cell(record, colConsequence),
	}

	row.JumpID = l.intCell(line, record, colJumpID)
	row.CostTime = l.intCell(line, record, colCostTime)
	row.Delay = l.floatCell(line, record, colDelay)
	row.TotalTimeHint = l.floatCell(line, record, colTotalTime)
	return row, true
}

func (l layout) intCell(line int, record []string, col column) int {
	raw := l.cell(record, col)
	if raw == "" {
		return 0
	}
	v, ok := parseInt(raw)
	if !ok {
		log.Printf("[script] defaulting cell: %v", &RowParseError{Line: line, Column: columnNames[col], Value: raw})
		return 0
	}
	return v
}

func (l layout) floatCell(line int, record []string, col column) float64 {
	raw := l.cell(record, col)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("[script] defaulting cell: %v", &RowParseError{Line: line, Column: columnNames[col], Value: raw})
		return 0
	}
	return v
}

// parseInt accepts plain integers and integral decimals such as "1001.0",
// which spreadsheets commonly emit for numeric cells.
func parseInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func parseFlag(raw string) model.Flag {
	switch {
	case raw == string(model.FlagOption):
		return model.FlagOption
	case strings.EqualFold(raw, string(model.FlagTerminal)):
		return model.FlagTerminal
	default:
		return model.FlagLine
	}
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
