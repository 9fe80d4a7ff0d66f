package ycmd

import (
	"encoding/json"
	"fmt"
)

// RequestParameters carries everything a file-scoped backend request needs:
// file path, contents, filetypes, and a 1-based cursor position. Extra
// key/value overrides let callers attach handler-specific fields (event name,
// subcommand arguments) without widening the struct.
//
// The embedding host builds these from its own buffer/view state; this layer
// only validates and serializes them.
type RequestParameters struct {
	FilePath      string
	FileContents  string
	FileTypes     []string
	LineNum       int // 1-based
	ColumnNum     int // 1-based
	ForceSemantic bool

	extra map[string]interface{}
}

// SetExtra attaches an arbitrary key/value pair to the request body. Extra
// values override the standard fields on conflict, matching the backend's
// expectations for handler-specific parameters.
func (p *RequestParameters) SetExtra(key string, value interface{}) {
	if p.extra == nil {
		p.extra = make(map[string]interface{})
	}
	p.extra[key] = value
}

// Copy returns an independent copy, so per-request mutation (e.g. adding an
// event name) never leaks into a caller-held instance.
func (p *RequestParameters) Copy() *RequestParameters {
	out := &RequestParameters{
		FilePath:      p.FilePath,
		FileContents:  p.FileContents,
		FileTypes:     append([]string(nil), p.FileTypes...),
		LineNum:       p.LineNum,
		ColumnNum:     p.ColumnNum,
		ForceSemantic: p.ForceSemantic,
	}
	if len(p.extra) > 0 {
		out.extra = make(map[string]interface{}, len(p.extra))
		for k, v := range p.extra {
			out.extra[k] = v
		}
	}
	return out
}

// Body validates the parameters, fills defaults for omitted fields, and
// returns the wire-format JSON object.
func (p *RequestParameters) Body() ([]byte, error) {
	if p.FilePath == "" {
		return nil, fmt.Errorf("ycmd: no file path specified")
	}
	fileTypes := p.FileTypes
	if fileTypes == nil {
		fileTypes = []string{}
	}
	lineNum := p.LineNum
	if lineNum <= 0 {
		lineNum = 1
	}
	columnNum := p.ColumnNum
	if columnNum <= 0 {
		columnNum = 1
	}

	body := map[string]interface{}{
		"filepath": p.FilePath,
		"file_data": map[string]interface{}{
			p.FilePath: map[string]interface{}{
				"filetypes": fileTypes,
				"contents":  p.FileContents,
			},
		},
		"line_num":   lineNum,
		"column_num": columnNum,
	}
	if p.ForceSemantic {
		body["force_semantic"] = true
	}
	for k, v := range p.extra {
		body[k] = v
	}
	return json.Marshal(body)
}
