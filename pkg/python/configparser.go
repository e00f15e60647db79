// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// This file mimics `configparser.py`.

package python

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

type Config map[string]ConfigSection

type ConfigSection map[string]string

// A ConfigParser reads the INI dialect that Python's configparser module reads: `[section]`
// headers, `key = value` options, values continued on further-indented lines.
type ConfigParser struct {
	Delimiters      []string
	CommentPrefixes []string

	// Strict makes duplicate section names and duplicate option names within a section
	// errors instead of last-one-wins.
	Strict bool

	// OptionTransform maps option names to their canonical form; nil leaves them as
	// written.  (configparser.py lowercases by default, but entry point names are
	// case-sensitive.)
	OptionTransform func(string) string
}

func NewConfigParser() *ConfigParser {
	return &ConfigParser{
		Delimiters:      []string{"=", ":"},
		CommentPrefixes: []string{"#", ";"},
		Strict:          true,
		OptionTransform: strings.ToLower,
	}
}

func (p *ConfigParser) transform(option string) string {
	if p.OptionTransform == nil {
		return option
	}
	return p.OptionTransform(option)
}

func (p *ConfigParser) Parse(fp io.Reader) (Config, error) {
	config := make(Config)

	var (
		curIndentLevel int
		curSection     ConfigSection
		curKey         string
		curVal         []string
	)

	flushKV := func() {
		if curVal != nil {
			curSection[curKey] = strings.TrimRight(strings.Join(curVal, "\n"), "\n")
			curKey = ""
			curVal = nil
		}
	}

	fpLines := bufio.NewReader(fp)
	lineno := 0
	keepGoing := true
	for keepGoing {
		line, err := fpLines.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			keepGoing = false
		}
		lineno++

		value := strings.TrimSpace(line)
		for _, commentPrefix := range p.CommentPrefixes {
			if strings.HasPrefix(value, commentPrefix) {
				value = ""
				break
			}
		}
		if value == "" {
			// a blank line inside a multi-line value is part of the value
			if curVal != nil && strings.TrimSpace(line) == "" {
				curVal = append(curVal, "")
			}
			continue
		}

		lineIndentLevel := 0
		for i, r := range line {
			if !unicode.IsSpace(r) {
				lineIndentLevel = i
				break
			}
		}
		switch {
		case curVal != nil && lineIndentLevel > 0 && lineIndentLevel > curIndentLevel:
			// continuation line
			curVal = append(curVal, value)
		case strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]"):
			// section header
			flushKV()
			curIndentLevel = lineIndentLevel
			sectName := strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
			if _, exists := config[sectName]; exists && p.Strict {
				return nil, fmt.Errorf("line %d: duplicate section name %q", lineno, sectName)
			}
			if _, exists := config[sectName]; !exists {
				config[sectName] = make(ConfigSection)
			}
			curSection = config[sectName]
		default:
			// start of a k/v pair
			flushKV()
			curIndentLevel = lineIndentLevel
			if curSection == nil {
				return nil, fmt.Errorf("line %d: no section header", lineno)
			}
			sepPos := len(value)
			sepLen := 0
			for _, sep := range p.Delimiters {
				if index := strings.Index(value, sep); index >= 0 && index < sepPos {
					sepPos = index
					sepLen = len(sep)
				}
			}
			if sepPos == len(value) {
				return nil, fmt.Errorf("line %d: invalid line: %q", lineno, value)
			}
			curKey = p.transform(strings.TrimSpace(value[:sepPos]))
			curVal = []string{
				strings.TrimSpace(value[sepPos+sepLen:]),
			}
			if _, exists := curSection[curKey]; exists && p.Strict {
				return nil, fmt.Errorf("line %d: duplicate option name %q", lineno, curKey)
			}
		}
	}
	flushKV()

	return config, nil
}
