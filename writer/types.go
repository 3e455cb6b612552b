package writer

import (
	"fmt"
	"time"
)

// Outbound command tags.
const (
	CmdOpen             = "open"
	CmdCreateWorkbook   = "create_workbook"
	CmdAddSheet         = "add_sheet"
	CmdSetSheetSettings = "set_sheet_settings"
	CmdActivateSheet    = "activate_sheet"
	CmdFormat           = "format"
	CmdWrite            = "write"
	CmdMergeRange       = "merge_range"
	CmdSetRow           = "set_row"
	CmdSetColumn        = "set_column"
)

// Inbound message tags.
const (
	TagOpen  = "open"
	TagClose = "close"
	TagError = "error"
)

const (
	FormatXLSX = "xlsx"
	FormatXLS  = "xls"
)

// WorkbookOptions is the payload of the create_workbook command.
type WorkbookOptions struct {
	DefaultDateFormat string      `json:"defaultDateFormat,omitempty"`
	Properties        *Properties `json:"properties,omitempty"`
}

// Properties are the document properties of a workbook.
type Properties struct {
	Title    string `json:"title,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Author   string `json:"author,omitempty"`
	Manager  string `json:"manager,omitempty"`
	Company  string `json:"company,omitempty"`
	Category string `json:"category,omitempty"`
	Keywords string `json:"keywords,omitempty"`
	Comments string `json:"comments,omitempty"`
}

type SheetSettings struct {
	Hidden         bool `json:"hidden,omitempty"`
	Activated      bool `json:"activated,omitempty"`
	Selected       bool `json:"selected,omitempty"`
	RightToLeft    bool `json:"rightToLeft,omitempty"`
	HideZeroValues bool `json:"hideZeroValues,omitempty"`
	// Selection is a cell or range such as "B3" or "A1:C4".
	Selection string `json:"selection,omitempty"`
}

type RowSettings struct {
	Height float64 `json:"height,omitempty"`
	// Format is the ID of a format registered with AddFormat.
	Format string `json:"format,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

type ColumnSettings struct {
	Width  float64 `json:"width,omitempty"`
	Format string  `json:"format,omitempty"`
	Hidden bool    `json:"hidden,omitempty"`
}

// Format describes how written cells look.
type Format struct {
	Font         *Font  `json:"font,omitempty"`
	NumberFormat string `json:"numberFormat,omitempty"`
	Locked       *bool  `json:"locked,omitempty"`
	Hidden       bool   `json:"hidden,omitempty"`
	// Alignment is a space separated list such as "center middle".
	Alignment       string   `json:"alignment,omitempty"`
	TextWrap        bool     `json:"textWrap,omitempty"`
	Rotation        int      `json:"rotation,omitempty"`
	Indent          int      `json:"indent,omitempty"`
	ShrinkToFit     bool     `json:"shrinkToFit,omitempty"`
	JustifyLastText bool     `json:"justifyLastText,omitempty"`
	Fill            *Fill    `json:"fill,omitempty"`
	Borders         *Borders `json:"borders,omitempty"`
}

func (*Format) style() {}

type Font struct {
	Name   string  `json:"name,omitempty"`
	Size   float64 `json:"size,omitempty"`
	Color  string  `json:"color,omitempty"`
	Bold   bool    `json:"bold,omitempty"`
	Italic bool    `json:"italic,omitempty"`
	// Underline is one of "single", "double", "single accounting" or "double accounting".
	Underline   string `json:"underline,omitempty"`
	Strikeout   bool   `json:"strikeout,omitempty"`
	Superscript bool   `json:"superscript,omitempty"`
	Subscript   bool   `json:"subscript,omitempty"`
}

type Fill struct {
	// Pattern defaults to a solid fill.
	Pattern         int    `json:"pattern,omitempty"`
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	ForegroundColor string `json:"foregroundColor,omitempty"`
}

type Borders struct {
	Style  int     `json:"style,omitempty"`
	Color  string  `json:"color,omitempty"`
	Top    *Border `json:"top,omitempty"`
	Left   *Border `json:"left,omitempty"`
	Right  *Border `json:"right,omitempty"`
	Bottom *Border `json:"bottom,omitempty"`
}

type Border struct {
	Style int    `json:"style,omitempty"`
	Color string `json:"color,omitempty"`
}

// Style selects the format of written cells: a FormatID registered with AddFormat, or an inline *Format.
type Style interface {
	style()
}

// FormatID refers to a format registered with AddFormat.
type FormatID string

func (FormatID) style() {}

// DateMarker is the wire form of a date value.
type DateMarker struct {
	Millis int64 `json:"$date"`
}

// Time returns the marked date in the local time zone.
func (d DateMarker) Time() time.Time {
	return time.UnixMilli(d.Millis)
}

// CommandError is reported by the worker when a command fails. The worker keeps processing later commands.
type CommandError struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("failed to execute command %q: %s", e.Command, e.Message)
}
